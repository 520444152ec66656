// Package rpc implements the JSON-RPC 2.0 API Facade spec.md §6
// assigns external callers: one request/response envelope served at
// both POST /wallet/v2 (current) and POST /wallet (legacy v1),
// following the teacher's internal/rpc.Server shape of a
// map[string]Handler dispatch table plus its CORS middleware, with an
// added X-API-KEY check and a gorilla/websocket push-feed endpoint
// (GET /wallet/ws). No component of the daemon broadcasts account,
// transaction-log or gift-code status changes to it.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/duskledger/walletd/internal/account"
	"github.com/duskledger/walletd/internal/giftcode"
	"github.com/duskledger/walletd/internal/ledger"
	"github.com/duskledger/walletd/internal/persist"
	"github.com/duskledger/walletd/internal/submission"
	"github.com/duskledger/walletd/internal/txbuilder"
	"github.com/duskledger/walletd/internal/txlog"
	"github.com/duskledger/walletd/internal/txo"
	"github.com/duskledger/walletd/internal/walleterr"
	"github.com/duskledger/walletd/pkg/logging"
)

// Version is the wallet service's reported API version.
const Version = "1.0.0"

// NetworkInfo is the subset of the ledger sync engine the facade needs
// for get_network_status/get_wallet_status.
type NetworkInfo interface {
	NetworkStatus() ledger.NetworkStatus
}

// Handler is a JSON-RPC method handler.
type Handler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Server is the JSON-RPC 2.0 HTTP API Facade.
type Server struct {
	pl  *persist.Store
	as  *account.Store
	ts  *txo.Store
	tls *txlog.Store
	tb  *txbuilder.Builder
	sp  *submission.Pipeline
	gc  *giftcode.Service
	ls  *ledger.Store
	net NetworkInfo

	apiKey string
	log    *logging.Logger
	wsHub  *WSHub

	handlers map[string]Handler
	mu       sync.RWMutex

	httpServer *http.Server
	listener   net.Listener
}

// Deps bundles every already-constructed component the facade wires
// JSON-RPC methods onto.
type Deps struct {
	Persist     *persist.Store
	Accounts    *account.Store
	Txos        *txo.Store
	TxLogs      *txlog.Store
	Builder     *txbuilder.Builder
	Submission  *submission.Pipeline
	GiftCodes   *giftcode.Service
	Ledger      *ledger.Store
	Network     NetworkInfo
	APIKey      string
}

// NewServer constructs the facade over the wallet's component handles.
func NewServer(d Deps) *Server {
	s := &Server{
		pl:       d.Persist,
		as:       d.Accounts,
		ts:       d.Txos,
		tls:      d.TxLogs,
		tb:       d.Builder,
		sp:       d.Submission,
		gc:       d.GiftCodes,
		ls:       d.Ledger,
		net:      d.Network,
		apiKey:   d.APIKey,
		log:      logging.GetDefault().Component("rpc"),
		handlers: make(map[string]Handler),
		wsHub:    NewWSHub(),
	}
	s.registerHandlers()
	return s
}

// registerHandlers wires every method spec.md §6 names to its handler.
// v1 and v2 share the same method names; only the route differs.
func (s *Server) registerHandlers() {
	// Account methods
	s.handlers["create_account"] = s.createAccount
	s.handlers["import_account"] = s.importAccount
	s.handlers["import_account_from_legacy_root_entropy"] = s.importAccountFromLegacyRootEntropy
	s.handlers["import_view_only_account"] = s.importViewOnlyAccount
	s.handlers["get_account"] = s.getAccount
	s.handlers["get_accounts"] = s.getAccounts
	s.handlers["get_account_status"] = s.getAccountStatus
	s.handlers["update_account_name"] = s.updateAccountName
	s.handlers["remove_account"] = s.removeAccount
	s.handlers["export_account_secrets"] = s.exportAccountSecrets

	// Address methods
	s.handlers["assign_address_for_account"] = s.assignAddressForAccount
	s.handlers["get_address_for_account"] = s.getAddressForAccount
	s.handlers["get_addresses"] = s.getAddresses
	s.handlers["verify_address"] = s.verifyAddress
	s.handlers["get_address_status"] = s.getAddressStatus
	s.handlers["check_b58_type"] = s.checkB58Type

	// Transaction methods
	s.handlers["build_transaction"] = s.buildTransaction
	s.handlers["build_unsigned_transaction"] = s.buildUnsignedTransaction
	s.handlers["submit_transaction"] = s.submitTransaction
	s.handlers["build_and_submit_transaction"] = s.buildAndSubmitTransaction
	s.handlers["build_split_txo_transaction"] = s.buildSplitTxoTransaction
	s.handlers["get_txo"] = s.getTxo
	s.handlers["get_txos"] = s.getTxos
	s.handlers["get_confirmations"] = s.getConfirmations
	s.handlers["validate_confirmation"] = s.validateConfirmation
	s.handlers["validate_sender_memo"] = s.validateSenderMemo
	s.handlers["create_payment_request"] = s.createPaymentRequest
	s.handlers["create_receiver_receipts"] = s.createReceiverReceipts
	s.handlers["check_receiver_receipt_status"] = s.checkReceiverReceiptStatus
	s.handlers["get_transaction_log"] = s.getTransactionLog
	s.handlers["get_transaction_logs"] = s.getTransactionLogs

	// Network/block methods
	s.handlers["get_block"] = s.getBlock
	s.handlers["get_blocks"] = s.getBlocks
	s.handlers["get_network_status"] = s.getNetworkStatus
	s.handlers["get_wallet_status"] = s.getWalletStatus
	s.handlers["version"] = s.version

	// Gift code methods
	s.handlers["build_gift_code"] = s.buildGiftCode
	s.handlers["submit_gift_code"] = s.submitGiftCode
	s.handlers["check_gift_code_status"] = s.checkGiftCodeStatus
	s.handlers["claim_gift_code"] = s.claimGiftCode
	s.handlers["get_gift_code"] = s.getGiftCode
	s.handlers["get_gift_codes"] = s.getGiftCodes
	s.handlers["remove_gift_code"] = s.removeGiftCode
}

// Start binds addr and begins serving. Routes: POST /wallet (v1),
// POST /wallet/v2 (v2), GET /health, GET /wallet/ws (push feed).
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = listener

	go s.wsHub.Run()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /wallet", s.handleRPC)
	mux.HandleFunc("POST /wallet/v2", s.handleRPC)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /wallet/ws", s.handleWS)

	s.httpServer = &http.Server{
		Handler:      corsMiddleware(s.apiKeyMiddleware(mux)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("rpc server error", "error", err)
		}
	}()

	s.log.Info("rpc server started", "addr", addr)
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// WSHub exposes the push-feed hub so other components can broadcast
// state changes. Nothing in cmd/walletd broadcasts through it; only the
// tests call Broadcast.
func (s *Server) WSHub() *WSHub {
	return s.wsHub
}

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Method  string      `json:"method,omitempty"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object. Data carries the typed
// walleterr.Kind under "server_error" and a JSON-encoded details blob
// under "details", per spec.md §6.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, nil, "", codeParseError, "parse error", nil)
		return
	}
	if req.JSONRPC != "2.0" {
		s.writeError(w, req.ID, req.Method, codeInvalidRequest, "invalid request", nil)
		return
	}

	s.mu.RLock()
	handler, ok := s.handlers[req.Method]
	s.mu.RUnlock()
	if !ok {
		s.writeError(w, req.ID, req.Method, codeMethodNotFound, "method not found", nil)
		return
	}

	result, err := handler(r.Context(), req.Params)
	if err != nil {
		s.writeErrFromErr(w, req.ID, req.Method, err)
		return
	}
	s.writeResult(w, req.ID, req.Method, result)
}

func (s *Server) writeResult(w http.ResponseWriter, id interface{}, method string, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(Response{JSONRPC: "2.0", ID: id, Method: method, Result: result})
}

func (s *Server) writeError(w http.ResponseWriter, id interface{}, method string, code int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(Response{JSONRPC: "2.0", ID: id, Method: method, Error: &RPCError{Code: code, Message: message, Data: data}})
}

// writeErrFromErr translates a walleterr.Error into the server_error/
// details envelope spec.md §6 documents; any other error becomes a
// bare internal error with no typed kind.
func (s *Server) writeErrFromErr(w http.ResponseWriter, id interface{}, method string, err error) {
	var we *walleterr.Error
	if errors.As(err, &we) {
		details := ""
		if we.Details != nil {
			if b, mErr := json.Marshal(we.Details); mErr == nil {
				details = string(b)
			}
			fields := append([]interface{}{"method", method, "kind", string(we.Kind)}, logging.Fields(we.Details)...)
			s.log.Error("rpc handler error", fields...)
		} else {
			s.log.Error("rpc handler error", "method", method, "kind", string(we.Kind))
		}
		s.writeError(w, id, method, codeInternalError, we.Error(), map[string]interface{}{
			"server_error": string(we.Kind),
			"details":      details,
		})
		return
	}
	s.log.Error("rpc handler error", "method", method, "error", err)
	s.writeError(w, id, method, codeInternalError, err.Error(), nil)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func decodeParams(params json.RawMessage, v interface{}) error {
	if len(params) == 0 {
		return nil
	}
	return json.Unmarshal(params, v)
}

func invalidParams(err error) error {
	return walleterr.Wrap(walleterr.InvalidParams, err)
}
