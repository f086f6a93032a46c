package normalizer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/bituzin/stacksend/internal/model"
)

// ErrInvalidPayload is returned when a delivery has no list-shaped apply field.
var ErrInvalidPayload = errors.New("invalid payload")

type SkipReason string

const (
	SkipFailedTx          SkipReason = "failed-tx"
	SkipMissingTxID       SkipReason = "missing-tx-id"
	SkipNoMatch           SkipReason = "no-multisend-call"
	SkipContractMismatch  SkipReason = "contract-mismatch"
	SkipMissingSender     SkipReason = "missing-sender"
	SkipNoValidRecipients SkipReason = "no-valid-recipients"
	SkipAmountOverflow    SkipReason = "amount-overflow"
)

// Skip records a transaction that produced no transfer. Skips are not errors.
type Skip struct {
	TxID        string
	BlockHeight int64
	Reason      SkipReason
}

// Fault records a block or transaction that could not be decoded. TxIndex is
// -1 for block-level faults.
type Fault struct {
	BlockIndex int
	TxIndex    int
	TxID       string
	Err        error
}

func (f Fault) Error() string {
	if f.TxIndex < 0 {
		return fmt.Sprintf("block %d: %v", f.BlockIndex, f.Err)
	}
	return fmt.Sprintf("block %d tx %d: %v", f.BlockIndex, f.TxIndex, f.Err)
}

// Result is the outcome of normalizing one delivery. Transfers keep payload order.
type Result struct {
	Transfers         []model.NormalizedTransfer
	Skipped           []Skip
	Faults            []Fault
	UnparsableAmounts int
}

// Normalizer turns webhook payloads into canonical transfers using one detector.
type Normalizer struct {
	detector  Detector
	contracts map[model.Network]string
}

// New builds a Normalizer. When contracts has an entry for the payload's
// network, contract-call dialects must originate from that contract.
func New(detector Detector, contracts map[model.Network]string) *Normalizer {
	if detector == nil {
		detector = DecodedSTXDetector{}
	}
	return &Normalizer{detector: detector, contracts: contracts}
}

func (n *Normalizer) Detector() Detector {
	return n.detector
}

type envelope struct {
	Apply     json.RawMessage `json:"apply"`
	Network   string          `json:"network"`
	Chainhook *struct {
		Network string `json:"network"`
	} `json:"chainhook"`
	Event *struct {
		Apply   json.RawMessage `json:"apply"`
		Network string          `json:"network"`
	} `json:"event"`
}

// DecodePayload accepts both the {apply, chainhook} and the {event: {apply}}
// envelopes.
func DecodePayload(body []byte) (model.WebhookPayload, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return model.WebhookPayload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	apply := env.Apply
	network := env.Network
	if env.Chainhook != nil && env.Chainhook.Network != "" {
		network = env.Chainhook.Network
	}
	if env.Event != nil && !isNull(env.Event.Apply) {
		apply = env.Event.Apply
		if env.Event.Network != "" {
			network = env.Event.Network
		}
	}

	trimmed := bytes.TrimSpace(apply)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return model.WebhookPayload{}, fmt.Errorf("%w: missing apply list", ErrInvalidPayload)
	}
	var blocks []json.RawMessage
	if err := json.Unmarshal(trimmed, &blocks); err != nil {
		return model.WebhookPayload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	return model.WebhookPayload{
		Network: model.ParseNetwork(network),
		Apply:   blocks,
	}, nil
}

// Normalize walks every block and transaction of the payload. A malformed
// block or transaction becomes a Fault and the rest of the batch continues.
func (n *Normalizer) Normalize(payload model.WebhookPayload) Result {
	var res Result
	for bi, rawBlock := range payload.Apply {
		var block model.Block
		if err := json.Unmarshal(rawBlock, &block); err != nil {
			res.Faults = append(res.Faults, Fault{BlockIndex: bi, TxIndex: -1, Err: fmt.Errorf("decode block: %w", err)})
			continue
		}
		for ti, rawTx := range block.Transactions {
			var tx model.Transaction
			if err := json.Unmarshal(rawTx, &tx); err != nil {
				res.Faults = append(res.Faults, Fault{BlockIndex: bi, TxIndex: ti, Err: fmt.Errorf("decode transaction: %w", err)})
				continue
			}
			if err := n.normalizeTx(&res, payload.Network, block, tx); err != nil {
				res.Faults = append(res.Faults, Fault{BlockIndex: bi, TxIndex: ti, TxID: tx.TransactionIdentifier.Hash, Err: err})
			}
		}
	}
	return res
}

func (n *Normalizer) normalizeTx(res *Result, network model.Network, block model.Block, tx model.Transaction) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while normalizing: %v", r)
		}
	}()

	txID := canonicalTxID(tx.TransactionIdentifier.Hash)
	skip := func(reason SkipReason) {
		res.Skipped = append(res.Skipped, Skip{TxID: txID, BlockHeight: block.BlockIdentifier.Index, Reason: reason})
	}

	if !tx.Metadata.Success {
		skip(SkipFailedTx)
		return nil
	}
	if txID == "" {
		skip(SkipMissingTxID)
		return nil
	}

	call, ok := n.detector.Detect(tx)
	if !ok {
		skip(SkipNoMatch)
		return nil
	}
	if !n.contractAllowed(network, call) {
		skip(SkipContractMismatch)
		return nil
	}

	sender := strings.TrimSpace(call.SenderAddress())
	if sender == "" {
		skip(SkipMissingSender)
		return nil
	}

	entries := call.Entries()
	if len(entries) == 0 {
		skip(SkipNoValidRecipients)
		return nil
	}

	transfer, unparsable, ok := buildTransfer(call, entries)
	if !ok {
		skip(SkipAmountOverflow)
		return nil
	}
	transfer.Event.TxID = txID
	transfer.Event.BlockHeight = block.BlockIdentifier.Index
	transfer.Event.Timestamp = block.Timestamp
	transfer.Event.SenderAddress = sender
	transfer.Event.Network = network

	res.UnparsableAmounts += unparsable
	res.Transfers = append(res.Transfers, transfer)
	return nil
}

func (n *Normalizer) contractAllowed(network model.Network, call ParsedCall) bool {
	want := n.contracts[network]
	if want == "" {
		return true
	}
	switch c := call.(type) {
	case DecodedSTXCall:
		return c.Contract == want
	case DecodedFTCall:
		return c.Contract == want
	default:
		return true
	}
}

func buildTransfer(call ParsedCall, entries []Entry) (model.NormalizedTransfer, int, bool) {
	out := model.NormalizedTransfer{Dialect: call.Dialect()}

	switch c := call.(type) {
	case DecodedFTCall:
		token := c.TokenContract
		out.Asset = ftAsset(token)
		out.Event.TransferType = model.TransferFT
		out.Event.TokenContract = &token
	default:
		out.Asset = model.STXAsset
		out.Event.TransferType = model.TransferSTX
	}

	var total int64
	unparsable := 0
	out.Recipients = make([]model.Recipient, 0, len(entries))
	for i, e := range entries {
		if e.Unparsable {
			unparsable++
		}
		if (e.Amount > 0 && total > math.MaxInt64-e.Amount) || (e.Amount < 0 && total < math.MinInt64-e.Amount) {
			return model.NormalizedTransfer{}, 0, false
		}
		total += e.Amount
		out.Recipients = append(out.Recipients, model.Recipient{
			Address:        e.To,
			Amount:         e.Amount,
			AmountDecimals: model.ScaleAmount(e.Amount, out.Asset.Decimals),
			PositionInList: i,
		})
	}
	out.Event.TotalAmount = total
	out.Event.RecipientCount = len(out.Recipients)
	return out, unparsable, true
}
