package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bituzin/stacksend/internal/model"
)

const userColumns = `id, wallet_address, telegram_chat_id, telegram_username, notification_enabled, created_at, updated_at`

func scanUser(row pgx.Row) (*model.UserLink, error) {
	var u model.UserLink
	if err := row.Scan(&u.ID, &u.WalletAddress, &u.ChannelID, &u.Username, &u.NotificationEnabled, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// GetUserByAddress returns nil without error when the address is unknown.
func (s *Store) GetUserByAddress(ctx context.Context, address string) (*model.UserLink, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE wallet_address = $1`, address))
}

// GetUserByChannel looks a user up by linked chat id.
func (s *Store) GetUserByChannel(ctx context.Context, channelID string) (*model.UserLink, error) {
	return scanUser(s.pool.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE telegram_chat_id = $1
		ORDER BY updated_at DESC
		LIMIT 1
	`, channelID))
}

// LinkChannel creates the user if needed and attaches the chat id to it.
func (s *Store) LinkChannel(ctx context.Context, address, channelID string, username *string) (*model.UserLink, error) {
	if address == "" || channelID == "" {
		return nil, fmt.Errorf("address and channel id are required")
	}
	user, err := scanUser(s.pool.QueryRow(ctx, `
		INSERT INTO users (wallet_address, telegram_chat_id, telegram_username)
		VALUES ($1, $2, $3)
		ON CONFLICT (wallet_address) DO UPDATE
		SET telegram_chat_id = EXCLUDED.telegram_chat_id,
			telegram_username = EXCLUDED.telegram_username,
			updated_at = now()
		RETURNING `+userColumns,
		address, channelID, username,
	))
	if err != nil {
		return nil, fmt.Errorf("link channel: %w", err)
	}
	return user, nil
}

// SetNotificationEnabled reports false when no user exists for the address.
func (s *Store) SetNotificationEnabled(ctx context.Context, address string, enabled bool) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET notification_enabled = $1, updated_at = now()
		WHERE wallet_address = $2
	`, enabled, address)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
