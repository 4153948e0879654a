package notify

import (
	"context"
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// sender is the subset of the bot API we use; narrowed for tests.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier delivers booking updates to users over Telegram. Users
// without a registered chat are skipped silently: the booking list in the
// app is the authoritative channel, Telegram is best-effort.
type TelegramNotifier struct {
	bot    sender
	logger *zerolog.Logger

	mu    sync.RWMutex
	chats map[int64]int64
}

func NewTelegramNotifier(token string, debug bool, chats map[int64]int64, logger *zerolog.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	bot.Debug = debug

	return newTelegramNotifier(bot, chats, logger), nil
}

func newTelegramNotifier(bot sender, chats map[int64]int64, logger *zerolog.Logger) *TelegramNotifier {
	if chats == nil {
		chats = make(map[int64]int64)
	}
	return &TelegramNotifier{bot: bot, chats: chats, logger: logger}
}

// RegisterChat binds a user to a Telegram chat.
func (n *TelegramNotifier) RegisterChat(userID, chatID int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.chats[userID] = chatID
}

func (n *TelegramNotifier) NotifyOwner(ctx context.Context, ownerID int64, text string) error {
	return n.send(ownerID, text)
}

func (n *TelegramNotifier) NotifyRenter(ctx context.Context, renterID int64, text string) error {
	return n.send(renterID, text)
}

func (n *TelegramNotifier) send(userID int64, text string) error {
	n.mu.RLock()
	chatID, ok := n.chats[userID]
	n.mu.RUnlock()
	if !ok {
		n.logger.Debug().Int64("user_id", userID).Msg("no telegram chat registered, notification skipped")
		return nil
	}

	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send to chat %d: %w", chatID, err)
	}
	return nil
}
