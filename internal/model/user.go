package model

import "time"

// UserLink maps a wallet address to an optional notification channel.
type UserLink struct {
	ID                  int64     `json:"id"`
	WalletAddress       string    `json:"wallet_address"`
	ChannelID           *string   `json:"telegram_chat_id,omitempty"`
	Username            *string   `json:"telegram_username,omitempty"`
	NotificationEnabled bool      `json:"notification_enabled"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// CanNotify reports whether a message may be sent to this user.
func (u UserLink) CanNotify() bool {
	return u.NotificationEnabled && u.ChannelID != nil && *u.ChannelID != ""
}
