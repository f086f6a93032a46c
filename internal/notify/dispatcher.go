package notify

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/bituzin/stacksend/internal/metrics"
	"github.com/bituzin/stacksend/internal/model"
	"github.com/bituzin/stacksend/internal/tracing"
)

// Request describes one notification for one recipient of a transfer.
type Request struct {
	RecipientID      int64
	ChannelID        string
	RecipientAddress string
	Amount           decimal.Decimal
	Asset            model.Asset
	TxID             string
	SenderAddress    string
	Network          model.Network
}

// Store records delivery attempts.
type Store interface {
	InsertNotification(ctx context.Context, rec model.NotificationRecord) error
	MarkNotificationDelivered(ctx context.Context, recipientID int64, at time.Time) (bool, error)
}

// Dispatcher sends transfer notifications. Delivery is best-effort: failures
// end up in the notification record and are never returned.
type Dispatcher struct {
	sender      Sender
	store       Store
	explorerURL string
	logger      *zap.Logger
	now         func() time.Time
}

func NewDispatcher(sender Sender, store Store, explorerURL string, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		sender:      sender,
		store:       store,
		explorerURL: explorerURL,
		logger:      logger,
		now:         time.Now,
	}
}

// Notify sends the message and records the attempt. It returns the channel
// message id and whether delivery succeeded.
func (d *Dispatcher) Notify(ctx context.Context, req Request) (string, bool) {
	ctx, span := tracing.Tracer("notify").Start(ctx, "notify.send")
	span.SetAttributes(
		attribute.String("tx_id", req.TxID),
		attribute.Int64("recipient_id", req.RecipientID),
	)
	defer span.End()

	text := TransferMessage(req, d.explorerURL)
	rec := model.NotificationRecord{
		RecipientID: req.RecipientID,
		ChannelID:   req.ChannelID,
		MessageText: text,
	}

	start := d.now()
	messageID, err := d.sender.SendMessage(ctx, req.ChannelID, text)
	metrics.NotificationLatency.Observe(time.Since(start).Seconds())

	log := d.logger.With(
		zap.String("tx_id", req.TxID),
		zap.Int64("recipient_id", req.RecipientID),
		zap.String("channel_id", req.ChannelID),
	)

	if err != nil {
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
		span.RecordError(err)
		errText := err.Error()
		rec.ErrorMessage = &errText
		log.Warn("notification failed", zap.Error(err))
		d.record(ctx, rec, log)
		return "", false
	}

	sentAt := d.now().UTC()
	rec.Delivered = true
	rec.ChannelMessageID = &messageID
	rec.SentAt = &sentAt
	metrics.NotificationsTotal.WithLabelValues("delivered").Inc()
	log.Info("notification sent", zap.String("message_id", messageID))

	d.record(ctx, rec, log)
	if _, err := d.store.MarkNotificationDelivered(ctx, req.RecipientID, sentAt); err != nil {
		metrics.StorageErrors.WithLabelValues("mark_delivered").Inc()
		log.Error("mark notification delivered", zap.Error(err))
	}
	return messageID, true
}

func (d *Dispatcher) record(ctx context.Context, rec model.NotificationRecord, log *zap.Logger) {
	if err := d.store.InsertNotification(ctx, rec); err != nil {
		metrics.StorageErrors.WithLabelValues("notification").Inc()
		log.Error("insert notification record", zap.Error(err))
	}
}
