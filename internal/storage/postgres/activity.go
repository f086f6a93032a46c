package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bituzin/stacksend/internal/model"
)

// InsertActivityEntries appends feed entries in a single batch.
func (s *Store) InsertActivityEntries(ctx context.Context, entries []model.ActivityEntry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range entries {
		meta, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal activity metadata: %w", err)
		}
		batch.Queue(`
			INSERT INTO activity_feed (user_address, event_type, transfer_id, recipient_id, metadata)
			VALUES ($1, $2, $3, $4, $5)
		`,
			e.UserAddress,
			string(e.EventType),
			e.TransferID,
			e.RecipientID,
			meta,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range entries {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// GetUserActivity returns the newest feed items for an address.
func (s *Store) GetUserActivity(ctx context.Context, address string, limit, offset int) ([]model.ActivityItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT af.id, af.user_address, af.event_type, af.transfer_id, af.recipient_id,
			af.metadata, af.created_at,
			t.tx_id, t.sender_address, t.transfer_type, t.token_contract, t.network,
			r.amount, r.amount_decimals::text
		FROM activity_feed af
		JOIN transfers t ON af.transfer_id = t.id
		LEFT JOIN recipients r ON af.recipient_id = r.id
		WHERE af.user_address = $1
		ORDER BY af.created_at DESC, af.id DESC
		LIMIT $2 OFFSET $3
	`, address, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.ActivityItem, 0, limit)
	for rows.Next() {
		var (
			item         model.ActivityItem
			eventType    string
			transferType string
			network      string
			meta         []byte
		)
		if err := rows.Scan(
			&item.ID, &item.UserAddress, &eventType, &item.TransferID, &item.RecipientID,
			&meta, &item.CreatedAt,
			&item.TxID, &item.SenderAddress, &transferType, &item.TokenContract, &network,
			&item.Amount, &item.AmountDecimals,
		); err != nil {
			return nil, err
		}
		item.EventType = model.ActivityType(eventType)
		item.TransferType = model.TransferType(transferType)
		item.Network = model.Network(network)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &item.Metadata); err != nil {
				return nil, fmt.Errorf("decode activity metadata: %w", err)
			}
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
