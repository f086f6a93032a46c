package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/bituzin/stacksend/internal/metrics"
	"github.com/bituzin/stacksend/internal/model"
	"github.com/bituzin/stacksend/internal/notify"
)

type State string

const (
	StateIdle         State = "idle"
	StateAwaitingLink State = "awaiting-link"
	StateLinked       State = "linked"
)

const (
	msgNotLinked = "Link your wallet in the StackSend app first!"
	msgStart     = "👋 *Welcome to StackSend!*\n\n" +
		"Send your Stacks wallet address (or `/link <address>`) to receive a message " +
		"whenever someone sends you STX or tokens via StackSend."
	msgBadAddress = "❌ That doesn't look like a Stacks address. It should start with `SP` (mainnet) or `ST` (testnet)."
	msgUnknown    = "Send /start to get started."
)

type Store interface {
	GetUserByChannel(ctx context.Context, channelID string) (*model.UserLink, error)
	LinkChannel(ctx context.Context, address, channelID string, username *string) (*model.UserLink, error)
	SetNotificationEnabled(ctx context.Context, address string, enabled bool) (bool, error)
}

// Command is one inbound chat message.
type Command struct {
	ChatID   string
	Username *string
	Text     string
}

// Service answers bot commands. A chat is linked when the store has a user
// for it; awaiting-link is kept in memory per chat.
type Service struct {
	store  Store
	logger *zap.Logger

	mu       sync.Mutex
	awaiting map[string]bool
}

func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger, awaiting: make(map[string]bool)}
}

// State reports the conversation state of a chat.
func (s *Service) State(ctx context.Context, chatID string) (State, error) {
	user, err := s.store.GetUserByChannel(ctx, chatID)
	if err != nil {
		return StateIdle, err
	}
	if user != nil {
		return StateLinked, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.awaiting[chatID] {
		return StateAwaitingLink, nil
	}
	return StateIdle, nil
}

func (s *Service) setAwaiting(chatID string, v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v {
		s.awaiting[chatID] = true
	} else {
		delete(s.awaiting, chatID)
	}
}

// Handle returns the reply text for cmd.
func (s *Service) Handle(ctx context.Context, cmd Command) (string, error) {
	name, arg := parseCommand(cmd.Text)
	label := name
	if label == "" {
		label = "text"
	}
	metrics.BotCommandsTotal.WithLabelValues(label).Inc()

	state, err := s.State(ctx, cmd.ChatID)
	if err != nil {
		return "", fmt.Errorf("load chat state: %w", err)
	}

	switch name {
	case "/start", "/help":
		if state == StateLinked {
			return s.status(ctx, cmd.ChatID)
		}
		s.setAwaiting(cmd.ChatID, true)
		return msgStart, nil
	case "/link":
		return s.link(ctx, cmd, arg)
	case "/status":
		return s.status(ctx, cmd.ChatID)
	case "/enable":
		return s.toggle(ctx, cmd.ChatID, true)
	case "/disable":
		return s.toggle(ctx, cmd.ChatID, false)
	case "":
		if state == StateAwaitingLink {
			return s.link(ctx, cmd, arg)
		}
		if state == StateLinked {
			return notify.CommandHelp, nil
		}
		return msgUnknown, nil
	default:
		if state == StateLinked {
			return notify.CommandHelp, nil
		}
		return msgUnknown, nil
	}
}

func (s *Service) link(ctx context.Context, cmd Command, address string) (string, error) {
	address = strings.TrimSpace(address)
	if !model.ValidStacksAddress(address) {
		s.setAwaiting(cmd.ChatID, true)
		return msgBadAddress, nil
	}
	if _, err := s.store.LinkChannel(ctx, address, cmd.ChatID, cmd.Username); err != nil {
		return "", fmt.Errorf("link wallet: %w", err)
	}
	s.setAwaiting(cmd.ChatID, false)
	s.logger.Info("wallet linked from bot", zap.String("chat_id", cmd.ChatID), zap.String("wallet", address))
	return notify.WelcomeMessage(address), nil
}

func (s *Service) status(ctx context.Context, chatID string) (string, error) {
	user, err := s.store.GetUserByChannel(ctx, chatID)
	if err != nil {
		return "", fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return msgNotLinked, nil
	}
	state := "disabled 🔕"
	if user.NotificationEnabled {
		state = "enabled 🔔"
	}
	return fmt.Sprintf("*Wallet:* `%s`\n*Notifications:* %s\n\n%s", user.WalletAddress, state, notify.CommandHelp), nil
}

func (s *Service) toggle(ctx context.Context, chatID string, enabled bool) (string, error) {
	user, err := s.store.GetUserByChannel(ctx, chatID)
	if err != nil {
		return "", fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return msgNotLinked, nil
	}
	if _, err := s.store.SetNotificationEnabled(ctx, user.WalletAddress, enabled); err != nil {
		return "", fmt.Errorf("update notifications: %w", err)
	}
	if enabled {
		return "🔔 Notifications *enabled*.", nil
	}
	return "🔕 Notifications *disabled*. Send /enable to turn them back on.", nil
}

// parseCommand splits "/cmd@bot arg" into ("/cmd", "arg"). Plain text yields
// an empty command and the whole text as arg.
func parseCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	name, arg, _ := strings.Cut(text, " ")
	if at := strings.IndexByte(name, '@'); at > 0 {
		name = name[:at]
	}
	return strings.ToLower(name), strings.TrimSpace(arg)
}

// Run answers updates until ctx is done or the channel closes.
func (s *Service) Run(ctx context.Context, updates <-chan tgbotapi.Update, sender notify.Sender) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			if u.Message == nil || u.Message.Chat == nil {
				continue
			}
			s.handleUpdate(ctx, u.Message, sender)
		}
	}
}

func (s *Service) handleUpdate(ctx context.Context, m *tgbotapi.Message, sender notify.Sender) {
	chatID := strconv.FormatInt(m.Chat.ID, 10)
	cmd := Command{ChatID: chatID, Text: m.Text}
	if m.From != nil && m.From.UserName != "" {
		username := m.From.UserName
		cmd.Username = &username
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	reply, err := s.Handle(ctx, cmd)
	if err != nil {
		s.logger.Error("bot command failed", zap.String("chat_id", chatID), zap.Error(err))
		reply = "⚠️ Something went wrong, please try again later."
	}
	if _, err := sender.SendMessage(ctx, chatID, reply); err != nil {
		s.logger.Warn("bot reply failed", zap.String("chat_id", chatID), zap.Error(err))
	}
}
