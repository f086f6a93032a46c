package model

import "time"

type ActivityType string

const (
	ActivitySent     ActivityType = "sent"
	ActivityReceived ActivityType = "received"
)

// ActivityEntry is an append-only feed item for one address.
type ActivityEntry struct {
	ID          int64          `json:"id,omitempty"`
	UserAddress string         `json:"user_address"`
	EventType   ActivityType   `json:"event_type"`
	TransferID  int64          `json:"transfer_id"`
	RecipientID *int64         `json:"recipient_id,omitempty"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   time.Time      `json:"created_at"`
}

// ActivityItem is an ActivityEntry joined with its transfer for feed rendering.
type ActivityItem struct {
	ActivityEntry
	TxID           string       `json:"tx_id"`
	SenderAddress  string       `json:"sender_address"`
	TransferType   TransferType `json:"transfer_type"`
	TokenContract  *string      `json:"token_contract,omitempty"`
	Network        Network      `json:"network"`
	Amount         *int64       `json:"amount,omitempty"`
	AmountDecimals *string      `json:"amount_decimals,omitempty"`
}
