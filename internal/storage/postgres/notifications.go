package postgres

import (
	"context"
	"time"

	"github.com/bituzin/stacksend/internal/model"
)

func (s *Store) InsertNotification(ctx context.Context, rec model.NotificationRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (
			recipient_id, telegram_chat_id, message_text, delivered,
			telegram_message_id, error_message, sent_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		rec.RecipientID,
		rec.ChannelID,
		rec.MessageText,
		rec.Delivered,
		rec.ChannelMessageID,
		rec.ErrorMessage,
		rec.SentAt,
	)
	return err
}

// MarkNotificationDelivered sets notification_sent once. It returns false if
// the recipient was already marked.
func (s *Store) MarkNotificationDelivered(ctx context.Context, recipientID int64, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE recipients
		SET notification_sent = TRUE, notification_sent_at = $2
		WHERE id = $1 AND notification_sent = FALSE
	`, recipientID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
