package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/bituzin/stacksend/internal/model"
)

const (
	DefaultSubject    = "stacksend.transfers.recorded"
	TypeTransferSaved = "transfer.recorded"
)

// TransferRecorded is published once per newly recorded transfer.
type TransferRecorded struct {
	Type       string                   `json:"type"`
	TransferID int64                    `json:"transfer_id"`
	Transfer   model.NormalizedTransfer `json:"transfer"`
	Timestamp  int64                    `json:"timestamp"`
}

type Publisher interface {
	PublishTransfer(ctx context.Context, transferID int64, t model.NormalizedTransfer) error
	Close()
}

// Nop discards events. It is used when no NATS url is configured.
type Nop struct{}

func (Nop) PublishTransfer(context.Context, int64, model.NormalizedTransfer) error { return nil }
func (Nop) Close()                                                                {}

type msgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// NATSPublisher emits TransferRecorded events as JSON on a single subject.
// The tx id is set as Nats-Msg-Id so JetStream streams can drop duplicates.
type NATSPublisher struct {
	conn    msgPublisher
	closer  func()
	subject string
	now     func() time.Time
}

// Connect dials NATS and keeps reconnecting in the background.
func Connect(url, subject string, logger *zap.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := nats.Connect(url,
		nats.Name("stacksend"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Info("nats connection closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	return newPublisher(conn, conn.Close, subject), nil
}

func newPublisher(conn msgPublisher, closer func(), subject string) *NATSPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSPublisher{conn: conn, closer: closer, subject: subject, now: time.Now}
}

func (p *NATSPublisher) PublishTransfer(ctx context.Context, transferID int64, t model.NormalizedTransfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(TransferRecorded{
		Type:       TypeTransferSaved,
		TransferID: transferID,
		Transfer:   t,
		Timestamp:  p.now().UTC().Unix(),
	})
	if err != nil {
		return err
	}
	msg := nats.NewMsg(p.subject)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, t.Event.TxID)
	return p.conn.PublishMsg(msg)
}

func (p *NATSPublisher) Close() {
	if p.closer != nil {
		p.closer()
	}
}
