package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bituzin/stacksend/internal/activity"
	"github.com/bituzin/stacksend/internal/events"
	"github.com/bituzin/stacksend/internal/ledger"
	"github.com/bituzin/stacksend/internal/metrics"
	"github.com/bituzin/stacksend/internal/model"
	"github.com/bituzin/stacksend/internal/normalizer"
	"github.com/bituzin/stacksend/internal/notify"
	"github.com/bituzin/stacksend/internal/tracing"
)

// Store is everything the pipeline persists or looks up.
type Store interface {
	ledger.TransferStore
	notify.Store
	activity.Store
	GetUserByAddress(ctx context.Context, address string) (*model.UserLink, error)
}

// Notifier sends one recipient notification; it never fails the caller.
type Notifier interface {
	Notify(ctx context.Context, req notify.Request) (string, bool)
}

// Deps are shared by the processors of every endpoint.
type Deps struct {
	Store             Store
	Notifier          Notifier
	Publisher         events.Publisher
	NotifyConcurrency int
	// SideEffectTimeout bounds publish, activity and notifications once the
	// ledger write committed. They do not inherit the caller's cancellation.
	SideEffectTimeout time.Duration
	Logger            *zap.Logger
}

// Summary counts what happened to one delivery.
type Summary struct {
	Transfers        int `json:"transfers"`
	Recorded         int `json:"recorded"`
	Duplicates       int `json:"duplicates"`
	Skipped          int `json:"skipped"`
	Faults           int `json:"faults"`
	Failed           int `json:"failed"`
	Notified         int `json:"notified"`
	NotifyFailed     int `json:"notify_failed"`
	UnparsableAmount int `json:"unparsable_amounts"`
}

// Processor drives Normalizer -> Writer -> Dispatcher -> Recorder for the
// transactions of a delivery, in order, isolating failures per transaction.
type Processor struct {
	normalizer  *normalizer.Normalizer
	writer      *ledger.Writer
	recorder    *activity.Recorder
	store       Store
	notifier    Notifier
	publisher   events.Publisher
	concurrency int
	sideEffects time.Duration
	logger      *zap.Logger
}

func New(n *normalizer.Normalizer, deps Deps) *Processor {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.Nop{}
	}
	concurrency := deps.NotifyConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	sideEffects := deps.SideEffectTimeout
	if sideEffects <= 0 {
		sideEffects = 30 * time.Second
	}
	return &Processor{
		normalizer:  n,
		sideEffects: sideEffects,
		writer:      ledger.NewWriter(deps.Store, logger),
		recorder:    activity.NewRecorder(deps.Store, logger),
		store:       deps.Store,
		notifier:    deps.Notifier,
		publisher:   publisher,
		concurrency: concurrency,
		logger:      logger.With(zap.String("dialect", n.Detector().Name())),
	}
}

// Normalize exposes the normalization step alone, used by dry-run replays.
func (p *Processor) Normalize(payload model.WebhookPayload) normalizer.Result {
	return p.normalizer.Normalize(payload)
}

// Process handles one decoded delivery. It never fails as a whole: faults of
// single transactions are logged and counted in the Summary.
func (p *Processor) Process(ctx context.Context, payload model.WebhookPayload) Summary {
	dialect := p.normalizer.Detector().Name()
	ctx, span := tracing.Tracer("pipeline").Start(ctx, "pipeline.process")
	defer span.End()

	res := p.normalizer.Normalize(payload)
	sum := Summary{
		Transfers:        len(res.Transfers),
		Skipped:          len(res.Skipped),
		Faults:           len(res.Faults),
		UnparsableAmount: res.UnparsableAmounts,
	}

	for _, s := range res.Skipped {
		metrics.TransactionsSkipped.WithLabelValues(string(s.Reason)).Inc()
		p.logger.Debug("transaction skipped",
			zap.String("tx_id", s.TxID),
			zap.Int64("block_height", s.BlockHeight),
			zap.String("reason", string(s.Reason)),
		)
	}
	for _, f := range res.Faults {
		metrics.TransactionFaults.WithLabelValues(dialect).Inc()
		p.logger.Warn("malformed transaction", zap.String("tx_id", f.TxID), zap.Error(f))
	}
	if res.UnparsableAmounts > 0 {
		metrics.UnparsableAmounts.WithLabelValues(dialect).Add(float64(res.UnparsableAmounts))
		p.logger.Warn("unparsable recipient amounts recorded as 0", zap.Int("count", res.UnparsableAmounts))
	}

	for _, t := range res.Transfers {
		out, err := p.ProcessTransfer(ctx, t)
		if err != nil {
			sum.Failed++
			span.RecordError(err)
			p.logger.Error("transaction processing failed", zap.String("tx_id", t.Event.TxID), zap.Error(err))
			continue
		}
		if out.Duplicate {
			sum.Duplicates++
			continue
		}
		sum.Recorded++
		sum.Notified += out.Notified
		sum.NotifyFailed += out.NotifyFailed
	}

	span.SetAttributes(
		attribute.Int("transfers", sum.Transfers),
		attribute.Int("recorded", sum.Recorded),
		attribute.Int("failed", sum.Failed),
	)
	if sum.Failed > 0 {
		span.SetStatus(codes.Error, "some transactions failed")
	}
	return sum
}

// Outcome is the result of processing a single transfer.
type Outcome struct {
	TransferID   int64
	Duplicate    bool
	Notified     int
	NotifyFailed int
}

// ProcessTransfer records one normalized transfer and runs its side effects.
// Duplicates stop after the ledger write. A returned error aborts only this
// transfer.
//
// A redelivery of a committed transfer is a duplicate, so activity and
// notifications get no second chance: they run detached from ctx.
func (p *Processor) ProcessTransfer(ctx context.Context, t model.NormalizedTransfer) (out Outcome, err error) {
	ctx, span := tracing.Tracer("pipeline").Start(ctx, "pipeline.transfer")
	span.SetAttributes(attribute.String("tx_id", t.Event.TxID))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing %s: %v", t.Event.TxID, r)
		}
	}()

	written, err := p.writer.Write(ctx, t)
	if err != nil {
		return Outcome{}, err
	}
	if written.Duplicate {
		return Outcome{Duplicate: true}, nil
	}
	out.TransferID = written.TransferID

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.sideEffects)
	defer cancel()

	if err := p.publisher.PublishTransfer(ctx, written.TransferID, t); err != nil {
		metrics.EventsPublishErrors.Inc()
		p.logger.Warn("publish transfer event", zap.String("tx_id", t.Event.TxID), zap.Error(err))
	}

	recordErr := p.recorder.Record(ctx, written.TransferID, t, written.RecipientIDs)
	if recordErr != nil {
		metrics.StorageErrors.WithLabelValues("activity").Inc()
	}

	out.Notified, out.NotifyFailed = p.notifyRecipients(ctx, t, written.RecipientIDs)
	return out, recordErr
}

// notifyRecipients fans out over recipients with bounded concurrency. Lookup
// and delivery failures are logged and never returned.
func (p *Processor) notifyRecipients(ctx context.Context, t model.NormalizedTransfer, recipientIDs []int64) (int, int) {
	if p.notifier == nil {
		return 0, 0
	}

	var delivered, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(p.concurrency)

	for i, r := range t.Recipients {
		recipientID := recipientIDs[i]
		g.Go(func() error {
			defer func() {
				if rec := recover(); rec != nil {
					failed.Add(1)
					p.logger.Error("notification panicked",
						zap.String("tx_id", t.Event.TxID),
						zap.String("address", r.Address),
						zap.Any("panic", rec),
					)
				}
			}()
			user, err := p.store.GetUserByAddress(ctx, r.Address)
			if err != nil {
				p.logger.Warn("user lookup failed", zap.String("address", r.Address), zap.Error(err))
				return nil
			}
			if user == nil || !user.CanNotify() {
				return nil
			}
			_, ok := p.notifier.Notify(ctx, notify.Request{
				RecipientID:      recipientID,
				ChannelID:        *user.ChannelID,
				RecipientAddress: r.Address,
				Amount:           r.AmountDecimals,
				Asset:            t.Asset,
				TxID:             t.Event.TxID,
				SenderAddress:    t.Event.SenderAddress,
				Network:          t.Event.Network,
			})
			if ok {
				delivered.Add(1)
			} else {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(delivered.Load()), int(failed.Load())
}
