package normalizer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bituzin/stacksend/internal/model"
)

const (
	FunctionSendManySTX = "send-many-stx"
	FunctionSendManyFT  = "send-many-ft"

	opContractCall = "CONTRACT_CALL"
	opCredit       = "CREDIT"
)

const (
	DialectDecodedSTX = "decoded-args-stx"
	DialectDecodedFT  = "decoded-args-ft"
	DialectLegacy     = "legacy-operations"
)

// Detector recognizes one payload dialect of a multi-send call. Detect never
// panics on malformed input; a false result is a non-match.
type Detector interface {
	Name() string
	Detect(tx model.Transaction) (ParsedCall, bool)
}

// ParsedCall is a multi-send call extracted by one of the dialect detectors.
// It is implemented by DecodedSTXCall, DecodedFTCall and LegacyCreditCall.
type ParsedCall interface {
	Dialect() string
	SenderAddress() string
	Entries() []Entry
	isParsedCall()
}

// Entry is one recipient list item as found in the payload.
type Entry struct {
	To     string
	Amount int64
	// Unparsable marks amounts that could not be read and were taken as 0.
	Unparsable bool
}

type DecodedSTXCall struct {
	Sender   string
	Contract string
	Items    []Entry
}

func (c DecodedSTXCall) Dialect() string       { return DialectDecodedSTX }
func (c DecodedSTXCall) SenderAddress() string { return c.Sender }
func (c DecodedSTXCall) Entries() []Entry      { return c.Items }
func (DecodedSTXCall) isParsedCall()           {}

type DecodedFTCall struct {
	Sender        string
	Contract      string
	TokenContract string
	Items         []Entry
}

func (c DecodedFTCall) Dialect() string       { return DialectDecodedFT }
func (c DecodedFTCall) SenderAddress() string { return c.Sender }
func (c DecodedFTCall) Entries() []Entry      { return c.Items }
func (DecodedFTCall) isParsedCall()           {}

type LegacyCreditCall struct {
	Sender string
	Items  []Entry
}

func (c LegacyCreditCall) Dialect() string       { return DialectLegacy }
func (c LegacyCreditCall) SenderAddress() string { return c.Sender }
func (c LegacyCreditCall) Entries() []Entry      { return c.Items }
func (LegacyCreditCall) isParsedCall()           {}

// DetectorByName resolves a configured dialect name.
func DetectorByName(name string) (Detector, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "decoded-args", DialectDecodedSTX:
		return DecodedSTXDetector{}, nil
	case DialectDecodedFT:
		return DecodedFTDetector{}, nil
	case "legacy", DialectLegacy:
		return LegacyCreditDetector{}, nil
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", name)
	}
}

// DecodedSTXDetector reads send-many-stx calls from decoded contract-call arguments.
type DecodedSTXDetector struct{}

func (DecodedSTXDetector) Name() string { return DialectDecodedSTX }

func (DecodedSTXDetector) Detect(tx model.Transaction) (ParsedCall, bool) {
	op, ok := findContractCall(tx.Operations, FunctionSendManySTX)
	if !ok {
		return nil, false
	}
	args, ok := functionArgs(op.Metadata)
	if !ok || len(args) < 1 {
		return nil, false
	}
	items, ok := decodeRecipientList(args[0], "ustx")
	if !ok {
		return nil, false
	}
	return DecodedSTXCall{
		Sender:   callSender(op, tx),
		Contract: op.Metadata.ContractIdentifier,
		Items:    items,
	}, true
}

// DecodedFTDetector reads send-many-ft calls: [tokenContract, [{to, amount}]].
type DecodedFTDetector struct{}

func (DecodedFTDetector) Name() string { return DialectDecodedFT }

func (DecodedFTDetector) Detect(tx model.Transaction) (ParsedCall, bool) {
	op, ok := findContractCall(tx.Operations, FunctionSendManyFT)
	if !ok {
		return nil, false
	}
	args, ok := functionArgs(op.Metadata)
	if !ok || len(args) < 2 {
		return nil, false
	}
	var token string
	if err := json.Unmarshal(args[0], &token); err != nil || strings.TrimSpace(token) == "" {
		return nil, false
	}
	items, ok := decodeRecipientList(args[1], "amount")
	if !ok {
		return nil, false
	}
	return DecodedFTCall{
		Sender:        callSender(op, tx),
		Contract:      op.Metadata.ContractIdentifier,
		TokenContract: strings.TrimSpace(token),
		Items:         items,
	}, true
}

// LegacyCreditDetector derives recipients from STX credit operations when the
// transaction description names the multi-send function.
type LegacyCreditDetector struct{}

func (LegacyCreditDetector) Name() string { return DialectLegacy }

func (LegacyCreditDetector) Detect(tx model.Transaction) (ParsedCall, bool) {
	if !strings.Contains(tx.Metadata.Description, FunctionSendManySTX) {
		return nil, false
	}
	sender := strings.TrimSpace(tx.Metadata.Sender)

	items := make([]Entry, 0, len(tx.Operations))
	for _, op := range tx.Operations {
		if op.Type != opCredit || op.Amount == nil {
			continue
		}
		if op.Amount.Currency.Symbol != model.STXAsset.Symbol {
			continue
		}
		addr := strings.TrimSpace(op.Account.Address)
		if addr == "" || addr == sender {
			continue
		}
		amount, ok := parseAmount(op.Amount.Value)
		if !ok || amount <= 0 {
			continue
		}
		items = append(items, Entry{To: addr, Amount: amount})
	}
	return LegacyCreditCall{Sender: sender, Items: items}, true
}

func findContractCall(ops []model.Operation, function string) (model.Operation, bool) {
	for _, op := range ops {
		if op.Type == opContractCall && op.Metadata.FunctionName == function {
			return op, true
		}
	}
	return model.Operation{}, false
}

func callSender(op model.Operation, tx model.Transaction) string {
	if addr := strings.TrimSpace(op.Account.Address); addr != "" {
		return addr
	}
	return strings.TrimSpace(tx.Metadata.Sender)
}

// functionArgs prefers decoded arguments and falls back to the raw list.
func functionArgs(meta model.OperationMetadata) ([]json.RawMessage, bool) {
	for _, raw := range []json.RawMessage{meta.FunctionArgsDecoded, meta.FunctionArgs} {
		if isNull(raw) {
			continue
		}
		var args []json.RawMessage
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, false
		}
		return args, true
	}
	return nil, false
}

// decodeRecipientList returns false when raw is not a list. Items without a
// recipient address are dropped.
func decodeRecipientList(raw json.RawMessage, amountKey string) ([]Entry, bool) {
	if isNull(raw) {
		return nil, false
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, false
	}

	items := make([]Entry, 0, len(list))
	for _, item := range list {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(item, &fields); err != nil {
			continue
		}
		var to string
		if err := json.Unmarshal(fields["to"], &to); err != nil {
			continue
		}
		to = strings.TrimSpace(to)
		if to == "" {
			continue
		}
		amount, ok := parseAmount(fields[amountKey])
		items = append(items, Entry{To: to, Amount: amount, Unparsable: !ok})
	}
	return items, true
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
