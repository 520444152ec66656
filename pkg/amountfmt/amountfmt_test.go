package amountfmt

import "testing"

func TestFormat(t *testing.T) {
	tests := []struct {
		amount   uint64
		decimals uint8
		want     string
	}{
		{1000000000000, 12, "1"},
		{500000000000, 12, "0.5"},
		{123456789012, 12, "0.123456789012"},
		{0, 12, "0"},
		{123, 0, "123"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := Format(tt.amount, tt.decimals)
			if got != tt.want {
				t.Errorf("Format(%d, %d) = %s, want %s", tt.amount, tt.decimals, got, tt.want)
			}
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		input    string
		decimals uint8
		want     uint64
		wantErr  bool
	}{
		{"1", 12, 1000000000000, false},
		{"0.5", 12, 500000000000, false},
		{"0.123456789012", 12, 123456789012, false},
		{"123", 0, 123, false},
		{"", 12, 0, true},
		{"1.2.3", 12, 0, true},
		{"abc", 12, 0, true},
		{"0.0000000000001", 12, 0, true}, // too many fractional digits
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input, tt.decimals)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Parse(%s, %d) = %d, want %d", tt.input, tt.decimals, got, tt.want)
			}
		})
	}
}

func TestFormatParseRoundtrip(t *testing.T) {
	amounts := []uint64{1, 100, 12345678, 2000000000000, 999999999}
	for _, amount := range amounts {
		formatted := Format(amount, 12)
		parsed, err := Parse(formatted, 12)
		if err != nil {
			t.Errorf("Parse(%s) failed: %v", formatted, err)
			continue
		}
		if parsed != amount {
			t.Errorf("roundtrip failed: %d -> %s -> %d", amount, formatted, parsed)
		}
	}
}

func TestU64StringRoundtrip(t *testing.T) {
	vals := []uint64{0, 1, 2000000000000, 18446744073709551615}
	for _, v := range vals {
		s := U64String(v)
		got, err := ParseU64String(s)
		if err != nil {
			t.Fatalf("ParseU64String(%s): %v", s, err)
		}
		if got != v {
			t.Errorf("roundtrip failed: %d -> %s -> %d", v, s, got)
		}
	}
}
