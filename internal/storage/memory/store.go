// Package memory is an in-process Store used for dry-run replays and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bituzin/stacksend/internal/model"
)

type recipientRow struct {
	id         int64
	transferID int64
	recipient  model.Recipient
	sent       bool
	sentAt     *time.Time
}

// Store mirrors the Postgres store semantics, including the tx id
// uniqueness used for idempotency.
type Store struct {
	mu            sync.Mutex
	nextID        int64
	transfers     []model.StoredTransfer
	byTxID        map[string]int64
	recipients    []*recipientRow
	users         map[string]*model.UserLink
	notifications []model.NotificationRecord
	activity      []model.ActivityEntry
	now           func() time.Time
}

func New() *Store {
	return &Store{
		byTxID: make(map[string]int64),
		users:  make(map[string]*model.UserLink),
		now:    time.Now,
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) CreateTransfer(ctx context.Context, t model.NormalizedTransfer) (model.LedgerWrite, error) {
	if err := ctx.Err(); err != nil {
		return model.LedgerWrite{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byTxID[t.Event.TxID]; ok {
		return model.LedgerWrite{Duplicate: true}, nil
	}

	ev := t.Event
	transferID := s.id()
	s.byTxID[ev.TxID] = transferID
	s.transfers = append(s.transfers, model.StoredTransfer{
		ID:             transferID,
		TxID:           ev.TxID,
		BlockHeight:    ev.BlockHeight,
		Timestamp:      ev.Timestamp,
		SenderAddress:  ev.SenderAddress,
		TransferType:   ev.TransferType,
		TokenContract:  ev.TokenContract,
		TotalAmount:    ev.TotalAmount,
		RecipientCount: ev.RecipientCount,
		Network:        ev.Network,
		CreatedAt:      s.now().UTC(),
	})

	ids := make([]int64, 0, len(t.Recipients))
	for _, r := range t.Recipients {
		row := &recipientRow{id: s.id(), transferID: transferID, recipient: r}
		s.recipients = append(s.recipients, row)
		ids = append(ids, row.id)
	}
	return model.LedgerWrite{TransferID: transferID, RecipientIDs: ids}, nil
}

func (s *Store) GetRecentTransfers(_ context.Context, limit int) ([]model.StoredTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.StoredTransfer, 0, limit)
	for i := len(s.transfers) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.transfers[i])
	}
	return out, nil
}

func (s *Store) GetUserByAddress(_ context.Context, address string) (*model.UserLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[address]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetUserByChannel(_ context.Context, channelID string) (*model.UserLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found *model.UserLink
	for _, u := range s.users {
		if u.ChannelID == nil || *u.ChannelID != channelID {
			continue
		}
		if found == nil || u.UpdatedAt.After(found.UpdatedAt) {
			found = u
		}
	}
	if found == nil {
		return nil, nil
	}
	cp := *found
	return &cp, nil
}

func (s *Store) LinkChannel(_ context.Context, address, channelID string, username *string) (*model.UserLink, error) {
	if address == "" || channelID == "" {
		return nil, fmt.Errorf("address and channel id are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	u, ok := s.users[address]
	if !ok {
		u = &model.UserLink{ID: s.id(), WalletAddress: address, NotificationEnabled: true, CreatedAt: now}
		s.users[address] = u
	}
	ch := channelID
	u.ChannelID = &ch
	u.Username = username
	u.UpdatedAt = now
	cp := *u
	return &cp, nil
}

func (s *Store) SetNotificationEnabled(_ context.Context, address string, enabled bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[address]
	if !ok {
		return false, nil
	}
	u.NotificationEnabled = enabled
	u.UpdatedAt = s.now().UTC()
	return true, nil
}

func (s *Store) InsertNotification(_ context.Context, rec model.NotificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, rec)
	return nil
}

func (s *Store) MarkNotificationDelivered(_ context.Context, recipientID int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range s.recipients {
		if row.id != recipientID {
			continue
		}
		if row.sent {
			return false, nil
		}
		row.sent = true
		ts := at
		row.sentAt = &ts
		return true, nil
	}
	return false, nil
}

func (s *Store) InsertActivityEntries(_ context.Context, entries []model.ActivityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	for _, e := range entries {
		e.ID = s.id()
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		s.activity = append(s.activity, e)
	}
	return nil
}

func (s *Store) GetUserActivity(_ context.Context, address string, limit, offset int) ([]model.ActivityItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []model.ActivityEntry
	for _, e := range s.activity {
		if e.UserAddress == address {
			matched = append(matched, e)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	if offset >= len(matched) {
		return []model.ActivityItem{}, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}

	items := make([]model.ActivityItem, 0, len(matched))
	for _, e := range matched {
		item := model.ActivityItem{ActivityEntry: e}
		for _, t := range s.transfers {
			if t.ID == e.TransferID {
				item.TxID = t.TxID
				item.SenderAddress = t.SenderAddress
				item.TransferType = t.TransferType
				item.TokenContract = t.TokenContract
				item.Network = t.Network
				break
			}
		}
		if e.RecipientID != nil {
			for _, row := range s.recipients {
				if row.id == *e.RecipientID {
					amount := row.recipient.Amount
					dec := row.recipient.AmountDecimals.String()
					item.Amount = &amount
					item.AmountDecimals = &dec
					break
				}
			}
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() {}

// Transfers returns a copy of every recorded transfer, oldest first.
func (s *Store) Transfers() []model.StoredTransfer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.StoredTransfer(nil), s.transfers...)
}

// RecipientsOf returns the recipients recorded for a transfer.
func (s *Store) RecipientsOf(transferID int64) []model.Recipient {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Recipient
	for _, row := range s.recipients {
		if row.transferID == transferID {
			out = append(out, row.recipient)
		}
	}
	return out
}

// RecipientNotified reports whether the recipient row was marked delivered.
func (s *Store) RecipientNotified(recipientID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range s.recipients {
		if row.id == recipientID {
			return row.sent
		}
	}
	return false
}

func (s *Store) Notifications() []model.NotificationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.NotificationRecord(nil), s.notifications...)
}

func (s *Store) Activity() []model.ActivityEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ActivityEntry(nil), s.activity...)
}
