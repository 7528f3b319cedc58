package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"sports-registration/internal/flow"
	"sports-registration/internal/model"
	"sports-registration/internal/service"
)

const (
	textUnknownCommand = "Unknown command. Type /start to begin registration."

	// handleTimeout bounds one update, including updates still queued when shutdown begins.
	handleTimeout = 30 * time.Second
)

// telegramAPI is the part of *tgbotapi.BotAPI the bot uses.
type telegramAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Registrar turns user input into replies.
type Registrar interface {
	Handle(ctx context.Context, ev flow.Event) (service.Reply, error)
}

// Bot connects the Telegram API to the registration flow.
type Bot struct {
	api       telegramAPI
	registrar Registrar
	log       zerolog.Logger
	inflight  sync.WaitGroup
	mu        sync.Mutex
	queues    map[int64]*userQueue
}

// userQueue holds one user's updates that arrived while an earlier one was still being handled.
type userQueue struct {
	pending []tgbotapi.Update
}

// New authorizes token with Telegram and returns a Bot that feeds registrar.
func New(token string, registrar Registrar, log zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	b := newBot(api, registrar, log)
	b.log.Info().Str("account", api.Self.UserName).Msg("bot authorized")
	return b, nil
}

func newBot(api telegramAPI, registrar Registrar, log zerolog.Logger) *Bot {
	return &Bot{
		api:       api,
		registrar: registrar,
		log:       log.With().Str("component", "bot").Logger(),
		queues:    make(map[int64]*userQueue),
	}
}

// Start polls updates until ctx is cancelled. Different users are served concurrently while
// each user's updates are handled in arrival order. Start returns once all of them have finished.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.log.Info().Msg("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		b.enqueue(ctx, update)
	}

	b.inflight.Wait()
	return nil
}

func (b *Bot) enqueue(ctx context.Context, update tgbotapi.Update) {
	userID := senderID(update)

	b.mu.Lock()
	if q, ok := b.queues[userID]; ok {
		q.pending = append(q.pending, update)
		b.mu.Unlock()
		return
	}
	q := &userQueue{pending: []tgbotapi.Update{update}}
	b.queues[userID] = q
	b.mu.Unlock()

	b.inflight.Add(1)
	go b.drain(ctx, userID, q)
}

func (b *Bot) drain(ctx context.Context, userID int64, q *userQueue) {
	defer b.inflight.Done()
	for {
		b.mu.Lock()
		if len(q.pending) == 0 {
			delete(b.queues, userID)
			b.mu.Unlock()
			return
		}
		next := q.pending[0]
		q.pending = q.pending[1:]
		b.mu.Unlock()

		// Updates already accepted are finished even after ctx is cancelled.
		handleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), handleTimeout)
		b.handleUpdate(handleCtx, next)
		cancel()
	}
}

func senderID(update tgbotapi.Update) int64 {
	switch {
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		return update.CallbackQuery.From.ID
	case update.Message != nil && update.Message.From != nil:
		return update.Message.From.ID
	default:
		return 0
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	log := b.log.With().Int("update", update.UpdateID).Str("trace", uuid.NewString()).Logger()
	ctx = log.WithContext(ctx)

	var err error
	switch {
	case update.CallbackQuery != nil:
		err = b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
			return
		}
		err = b.handleMessage(ctx, update.Message)
	}
	if err != nil {
		log.Error().Err(err).Msg("handle update")
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if msg.IsCommand() {
		zerolog.Ctx(ctx).Info().Int64("user", msg.From.ID).Str("command", msg.Command()).Msg("command")
		switch msg.Command() {
		case "start":
			return b.dispatch(ctx, msg.Chat.ID, flow.Start(msg.From.ID))
		default:
			return b.sendReply(msg.Chat.ID, service.Reply{Text: textUnknownCommand})
		}
	}

	return b.dispatch(ctx, msg.Chat.ID, flow.Text(msg.From.ID, msg.Text))
}

// handleCallback acknowledges every click before doing anything else.
func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("callback ack")
	}
	if cb.From == nil {
		return nil
	}

	chatID := cb.From.ID
	if cb.Message != nil && cb.Message.Chat != nil {
		if !cb.Message.Chat.IsPrivate() {
			return nil
		}
		chatID = cb.Message.Chat.ID
	}
	return b.dispatch(ctx, chatID, flow.Button(cb.From.ID, cb.Data))
}

func (b *Bot) dispatch(ctx context.Context, chatID int64, ev flow.Event) error {
	reply, err := b.registrar.Handle(ctx, ev)
	if err != nil {
		level := zerolog.ErrorLevel
		if errors.Is(err, model.ErrPersistRegistration) {
			level = zerolog.WarnLevel
		}
		zerolog.Ctx(ctx).WithLevel(level).Err(err).Int64("user", ev.UserID).Msg("registration input")
	}
	if reply.Text == "" {
		return nil
	}
	return b.sendReply(chatID, reply)
}

func (b *Bot) sendReply(chatID int64, reply service.Reply) error {
	msg := tgbotapi.NewMessage(chatID, reply.Text)
	msg.ParseMode = tgbotapi.ModeHTML
	if len(reply.Menu) > 0 {
		msg.ReplyMarkup = inlineKeyboard(reply.Menu)
	}
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func inlineKeyboard(menu flow.Menu) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(menu))
	for _, options := range menu {
		row := make([]tgbotapi.InlineKeyboardButton, 0, len(options))
		for _, o := range options {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(o.Label, o.Value))
		}
		rows = append(rows, row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
