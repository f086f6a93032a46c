package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bituzin/stacksend/internal/model"
)

const insertTransferSQL = `
	INSERT INTO transfers (
		tx_id, block_height, block_timestamp, sender_address, transfer_type,
		token_contract, total_amount, recipient_count, network
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (tx_id) DO NOTHING
	RETURNING id`

const insertRecipientSQL = `
	INSERT INTO recipients (
		transfer_id, recipient_address, amount, amount_decimals, position_in_list
	) VALUES ($1, $2, $3, $4::numeric, $5)
	RETURNING id`

// CreateTransfer inserts the transfer and its recipients in one transaction.
// The insert is conditioned on tx_id so concurrent deliveries of the same
// transaction create at most one row.
func (s *Store) CreateTransfer(ctx context.Context, t model.NormalizedTransfer) (model.LedgerWrite, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.LedgerWrite{}, fmt.Errorf("begin transfer tx: %w", err)
	}

	ev := t.Event
	var transferID int64
	err = tx.QueryRow(ctx, insertTransferSQL,
		ev.TxID,
		ev.BlockHeight,
		ev.Timestamp,
		ev.SenderAddress,
		string(ev.TransferType),
		ev.TokenContract,
		ev.TotalAmount,
		ev.RecipientCount,
		string(ev.Network),
	).Scan(&transferID)
	if err != nil {
		_ = tx.Rollback(ctx)
		if errors.Is(err, pgx.ErrNoRows) {
			return model.LedgerWrite{Duplicate: true}, nil
		}
		return model.LedgerWrite{}, fmt.Errorf("insert transfer: %w", err)
	}

	ids := make([]int64, len(t.Recipients))
	for i, r := range t.Recipients {
		err := tx.QueryRow(ctx, insertRecipientSQL,
			transferID,
			r.Address,
			r.Amount,
			r.AmountDecimals.String(),
			r.PositionInList,
		).Scan(&ids[i])
		if err != nil {
			_ = tx.Rollback(ctx)
			return model.LedgerWrite{}, fmt.Errorf("insert recipient %d: %w", r.PositionInList, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return model.LedgerWrite{}, fmt.Errorf("commit transfer tx: %w", err)
	}
	return model.LedgerWrite{TransferID: transferID, RecipientIDs: ids}, nil
}

// GetRecentTransfers returns the newest transfers first.
func (s *Store) GetRecentTransfers(ctx context.Context, limit int) ([]model.StoredTransfer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tx_id, block_height, block_timestamp, sender_address, transfer_type,
			token_contract, total_amount, recipient_count, network, created_at
		FROM transfers
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.StoredTransfer, 0, limit)
	for rows.Next() {
		var (
			t            model.StoredTransfer
			transferType string
			network      string
		)
		if err := rows.Scan(
			&t.ID, &t.TxID, &t.BlockHeight, &t.Timestamp, &t.SenderAddress, &transferType,
			&t.TokenContract, &t.TotalAmount, &t.RecipientCount, &network, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		t.TransferType = model.TransferType(transferType)
		t.Network = model.Network(network)
		out = append(out, t)
	}
	return out, rows.Err()
}
