package normalizer

import (
	"encoding/json"
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		raw  string
		want int64
		ok   bool
	}{
		{`1000000`, 1000000, true},
		{`"2000000"`, 2000000, true},
		{`" 15 "`, 15, true},
		{`1e6`, 1000000, true},
		{`"1.5"`, 0, false},
		{`"abc"`, 0, false},
		{`null`, 0, false},
		{``, 0, false},
		{`"99999999999999999999"`, 0, false},
	}
	for _, tc := range cases {
		got, ok := parseAmount(json.RawMessage(tc.raw))
		if got != tc.want || ok != tc.ok {
			t.Fatalf("parseAmount(%s) = %d,%v want %d,%v", tc.raw, got, ok, tc.want, tc.ok)
		}
	}
}

func TestCanonicalTxID(t *testing.T) {
	upper := "0xABCDEFABCDEFABCDEFABCDEFABCDEFABCDEFABCDEFABCDEFABCDEFABCDEFABCD"
	want := "0xabcdefabcdefabcdefabcdefabcdefabcdefabcdefabcdefabcdefabcdefabcd"
	if got := canonicalTxID(upper); got != want {
		t.Fatalf("got %s", got)
	}
	if got := canonicalTxID(want[2:]); got != want {
		t.Fatalf("missing prefix not added: %s", got)
	}
	if got := canonicalTxID(" tx-1 "); got != "tx-1" {
		t.Fatalf("non-hex id changed: %s", got)
	}
}

func TestFTAsset(t *testing.T) {
	cases := map[string]struct {
		symbol   string
		decimals int32
	}{
		"SP3DX3H4FEYZJZ586MFBS25ZW3HZDMEW92260R2PR.Wrapped-Bitcoin": {"sBTC", 8},
		"SM3VDXK3WZZSA84XXFKAFAF15NNZX32CTSG82JFQ4.sbtc-token":      {"sBTC", 8},
		"SP2C2YFP12AJZB4MABJBAJ55XECVS7E4PMMZ89YZR.usda-token":      {"usda-token", 6},
		"SP_DEPLOYER.my-coin::my-coin":                              {"my-coin", 6},
		"SP_DEPLOYER.":                                              {"FT", 6},
	}
	for contract, want := range cases {
		got := ftAsset(contract)
		if got.Symbol != want.symbol || got.Decimals != want.decimals {
			t.Fatalf("ftAsset(%s) = %+v", contract, got)
		}
	}
}
