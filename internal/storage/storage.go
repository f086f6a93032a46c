package storage

import "github.com/bituzin/stacksend/internal/model"

// TransferSink receives normalized transfers outside the ledger, e.g. the
// output of a dry-run replay.
type TransferSink interface {
	PutTransfers(transfers []model.NormalizedTransfer) error
}
