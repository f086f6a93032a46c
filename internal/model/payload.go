package model

import "encoding/json"

// WebhookPayload is the normalized envelope of one webhook delivery. Blocks
// are kept raw so that each one is decoded (and may fail) independently.
type WebhookPayload struct {
	Network Network           `json:"network"`
	Apply   []json.RawMessage `json:"apply"`
}

// Block is one applied block of a delivery.
type Block struct {
	BlockIdentifier BlockIdentifier   `json:"block_identifier"`
	Timestamp       int64             `json:"timestamp"`
	Transactions    []json.RawMessage `json:"transactions"`
}

type BlockIdentifier struct {
	Index int64  `json:"index"`
	Hash  string `json:"hash"`
}

// Transaction is one transaction inside an applied block.
type Transaction struct {
	TransactionIdentifier TransactionIdentifier `json:"transaction_identifier"`
	Metadata              TransactionMetadata   `json:"metadata"`
	Operations            []Operation           `json:"operations"`
}

type TransactionIdentifier struct {
	Hash string `json:"hash"`
}

type TransactionMetadata struct {
	Success     bool   `json:"success"`
	Sender      string `json:"sender"`
	Description string `json:"description"`
}

type Operation struct {
	Type     string            `json:"type"`
	Status   string            `json:"status,omitempty"`
	Account  OperationAccount  `json:"account"`
	Amount   *OperationAmount  `json:"amount,omitempty"`
	Metadata OperationMetadata `json:"metadata"`
}

type OperationAccount struct {
	Address string `json:"address"`
}

type OperationAmount struct {
	Value    json.RawMessage `json:"value"`
	Currency Currency        `json:"currency"`
}

type Currency struct {
	Symbol   string `json:"symbol"`
	Decimals int32  `json:"decimals"`
}

type OperationMetadata struct {
	FunctionName        string          `json:"function_name,omitempty"`
	ContractIdentifier  string          `json:"contract_identifier,omitempty"`
	FunctionArgsDecoded json.RawMessage `json:"function_args_decoded,omitempty"`
	FunctionArgs        json.RawMessage `json:"function_args,omitempty"`
}
