// Package main provides the walletd daemon - a self-custodial
// privacy-chain wallet backend exposing the JSON-RPC 2.0 API Facade.
package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/duskledger/walletd/internal/account"
	"github.com/duskledger/walletd/internal/config"
	"github.com/duskledger/walletd/internal/giftcode"
	"github.com/duskledger/walletd/internal/ledger"
	"github.com/duskledger/walletd/internal/ledgersource"
	"github.com/duskledger/walletd/internal/persist"
	"github.com/duskledger/walletd/internal/rpc"
	"github.com/duskledger/walletd/internal/scanner"
	"github.com/duskledger/walletd/internal/submission"
	"github.com/duskledger/walletd/internal/txbuilder"
	"github.com/duskledger/walletd/internal/txlog"
	"github.com/duskledger/walletd/internal/txo"
	"github.com/duskledger/walletd/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logging.GetDefault().Error("failed to load config", "error", err)
		os.Exit(config.ExitConfigError)
	}

	log := logging.New(&logging.Config{Level: cfg.LogLevel, TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	if cfg.ConfigFile != "" {
		log.Info("config loaded", "file", cfg.ConfigFile)
	}
	log.Infof("walletd %s (commit: %s)", version, commit)

	pl, err := persist.Open(persist.Config{Path: cfg.WalletDB})
	if err != nil {
		log.Error("failed to open wallet database", "error", err, "path", cfg.WalletDB)
		os.Exit(config.ExitDatabaseError)
	}
	defer pl.Close()

	if cfg.WalletPassword != "" {
		if err := pl.Unlock(cfg.WalletPassword); err != nil {
			log.Error("failed to unlock wallet database", "error", err)
			os.Exit(config.ExitDatabaseError)
		}
		log.Info("wallet database unlocked")
	} else {
		log.Warn("no --wallet-password/MC_WALLET_PASSWORD set; account-secret operations will fail until Unlock is called")
	}

	ls, err := ledger.Open(cfg.LedgerDB)
	if err != nil {
		log.Error("failed to open ledger store", "error", err, "path", cfg.LedgerDB)
		os.Exit(config.ExitLedgerFailure)
	}
	defer ls.Close()

	as := account.New(pl)
	ts := txo.New(pl, as)
	tls := txlog.New(pl)

	var (
		source ledger.LedgerSource
		sc     *scanner.Scanner
		net    rpc.NetworkInfo
	)

	if cfg.Offline {
		log.Info("running offline: ledger sync, scanner and submission pipeline are disabled")
		net = offlineNetworkInfo{ls: ls}
	} else {
		// The actual peer/validator wire protocol is an out-of-scope
		// external collaborator (spec.md §1); ledgersource.Memory is
		// the seam a real transport would implement against. Until
		// one exists, this process tracks whatever that seam has been
		// told about rather than talking to cfg.Peers/cfg.Validator
		// directly.
		mem := ledgersource.NewMemory(map[uint64]uint64{0: 400}, 1)
		source = mem

		syncEngine := ledger.NewSyncEngine(ls, source)
		syncEngine.Start()
		defer syncEngine.Stop()
		net = syncEngine

		sc = scanner.New(pl, as, ls, syncEngine.Notify())
		sc.Start()
		defer sc.Stop()
	}

	tb := txbuilder.New(pl, as, ts, ls, net)

	var sp *submission.Pipeline
	var gc *giftcode.Service
	if !cfg.Offline {
		sp = submission.New(pl, source, net)
		gc = giftcode.New(pl, as, ts, tb, sp, sc, net)
	}

	server := rpc.NewServer(rpc.Deps{
		Persist:    pl,
		Accounts:   as,
		Txos:       ts,
		TxLogs:     tls,
		Builder:    tb,
		Submission: sp,
		GiftCodes:  gc,
		Ledger:     ls,
		Network:    net,
		APIKey:     cfg.APIKey,
	})
	if err := server.Start(cfg.Addr()); err != nil {
		log.Error("failed to start rpc server", "error", err)
		os.Exit(config.ExitConfigError)
	}

	log.Info("walletd ready", "addr", cfg.Addr(), "wallet_db", cfg.WalletDB, "ledger_db", cfg.LedgerDB, "offline", cfg.Offline)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down...")

	if err := server.Stop(); err != nil {
		log.Error("error stopping rpc server", "error", err)
	}
	log.Info("goodbye")
}

// offlineNetworkInfo reports the ledger store's own tail as both the
// local and network height when no sync engine is running, so
// txbuilder/submission/rpc still have a NetworkInfo to read rather
// than needing a nil check at every call site.
type offlineNetworkInfo struct {
	ls *ledger.Store
}

func (o offlineNetworkInfo) NetworkStatus() ledger.NetworkStatus {
	tail, _ := o.ls.TailIndex()
	return ledger.NetworkStatus{
		NetworkBlockHeight: tail,
		LocalBlockHeight:   tail,
		Fees:               map[uint64]uint64{0: 400},
		BlockVersion:       1,
	}
}
