package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type TransferType string

const (
	TransferSTX TransferType = "STX"
	TransferFT  TransferType = "FT"
)

type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkTestnet Network = "testnet"
	NetworkUnknown Network = "unknown"
)

// ParseNetwork maps an upstream network label onto a known Network.
func ParseNetwork(raw string) Network {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "mainnet":
		return NetworkMainnet
	case "testnet":
		return NetworkTestnet
	default:
		return NetworkUnknown
	}
}

// Asset describes how amounts of a transfer are rendered.
type Asset struct {
	Symbol   string `json:"symbol"`
	Decimals int32  `json:"decimals"`
}

var STXAsset = Asset{Symbol: "STX", Decimals: 6}

// TransferEvent is one on-chain multi-send call.
type TransferEvent struct {
	TxID           string       `json:"tx_id"`
	BlockHeight    int64        `json:"block_height"`
	Timestamp      int64        `json:"timestamp"`
	SenderAddress  string       `json:"sender_address"`
	TransferType   TransferType `json:"transfer_type"`
	TokenContract  *string      `json:"token_contract,omitempty"`
	TotalAmount    int64        `json:"total_amount"`
	RecipientCount int          `json:"recipient_count"`
	Network        Network      `json:"network"`
}

// Recipient is one payee inside a TransferEvent.
type Recipient struct {
	Address        string          `json:"recipient_address"`
	Amount         int64           `json:"amount"`
	AmountDecimals decimal.Decimal `json:"amount_decimals"`
	PositionInList int             `json:"position_in_list"`
}

// NormalizedTransfer is the normalizer output for a single qualifying transaction.
type NormalizedTransfer struct {
	Event      TransferEvent `json:"event"`
	Recipients []Recipient   `json:"recipients"`
	Asset      Asset         `json:"asset"`
	Dialect    string        `json:"dialect"`
}

// TokenLabel returns the contract id for FT transfers and the symbol otherwise.
func (n NormalizedTransfer) TokenLabel() string {
	if n.Event.TokenContract != nil {
		return *n.Event.TokenContract
	}
	return n.Asset.Symbol
}

// StoredTransfer is a transfer row as read back for the recent transfers feed.
type StoredTransfer struct {
	ID             int64        `json:"id"`
	TxID           string       `json:"tx_id"`
	BlockHeight    int64        `json:"block_height"`
	Timestamp      int64        `json:"timestamp"`
	SenderAddress  string       `json:"sender_address"`
	TransferType   TransferType `json:"transfer_type"`
	TokenContract  *string      `json:"token_contract,omitempty"`
	TotalAmount    int64        `json:"total_amount"`
	RecipientCount int          `json:"recipient_count"`
	Network        Network      `json:"network"`
	CreatedAt      time.Time    `json:"created_at"`
}

// LedgerWrite is the outcome of persisting a NormalizedTransfer. Duplicate is
// true when the tx id was already recorded and nothing was written.
type LedgerWrite struct {
	TransferID   int64   `json:"transfer_id"`
	RecipientIDs []int64 `json:"recipient_ids"`
	Duplicate    bool    `json:"duplicate"`
}

// ScaleAmount returns amount / 10^decimals exactly.
func ScaleAmount(amount int64, decimals int32) decimal.Decimal {
	return decimal.New(amount, -decimals)
}
