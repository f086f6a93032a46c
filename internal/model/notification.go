package model

import "time"

// NotificationRecord audits a single delivery attempt to a recipient's channel.
type NotificationRecord struct {
	RecipientID      int64      `json:"recipient_id"`
	ChannelID        string     `json:"channel_id"`
	MessageText      string     `json:"message_text"`
	Delivered        bool       `json:"delivered"`
	ChannelMessageID *string    `json:"channel_message_id,omitempty"`
	ErrorMessage     *string    `json:"error_message,omitempty"`
	SentAt           *time.Time `json:"sent_at,omitempty"`
}
