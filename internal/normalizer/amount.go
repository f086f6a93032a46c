package normalizer

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"

	"github.com/bituzin/stacksend/internal/model"
)

// parseAmount reads an integer amount encoded as a JSON number or a numeric
// string. The bool is false when the value could not be read; the amount is
// then 0.
func parseAmount(raw json.RawMessage) (int64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}

	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, false
		}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, false
	}

	if v, err := strconv.ParseInt(text, 10, 64); err == nil {
		return v, true
	}

	// 1e6, 1000000.0 and similar.
	d, err := decimal.NewFromString(text)
	if err != nil || !d.IsInteger() {
		return 0, false
	}
	if d.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || d.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return 0, false
	}
	return d.IntPart(), true
}

// canonicalTxID lower-cases 32-byte hex transaction ids and adds the 0x
// prefix so the idempotency key does not depend on upstream formatting.
func canonicalTxID(raw string) string {
	id := strings.TrimSpace(raw)
	candidate := id
	if !strings.HasPrefix(candidate, "0x") && !strings.HasPrefix(candidate, "0X") {
		candidate = "0x" + candidate
	}
	if b, err := hexutil.Decode(candidate); err == nil && len(b) == 32 {
		return hexutil.Encode(b)
	}
	return id
}

const wrappedBTCSymbol = "sBTC"

// ftAsset derives the display asset for a fungible token contract principal.
func ftAsset(tokenContract string) model.Asset {
	if strings.Contains(tokenContract, "Wrapped-Bitcoin") || strings.Contains(strings.ToLower(tokenContract), "sbtc-token") {
		return model.Asset{Symbol: wrappedBTCSymbol, Decimals: 8}
	}

	id := tokenContract
	if idx := strings.Index(id, "::"); idx >= 0 {
		id = id[:idx]
	}
	symbol := id[strings.LastIndex(id, ".")+1:]
	if symbol == "" {
		symbol = "FT"
	}
	return model.Asset{Symbol: symbol, Decimals: 6}
}
