// Package bot is the Telegram front end of the planner.
package bot

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"crm-planner/internal/date"
	"crm-planner/internal/model"
	"crm-planner/internal/repository"
	"crm-planner/internal/service"
)

const (
	cbCompletePrefix = "complete:"
	cbDeletePrefix   = "delete:"
)

// sender is the part of the Telegram API the handlers use.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot routes Telegram updates to the planner services.
type Bot struct {
	client   *tgbotapi.BotAPI
	api      sender
	users    *repository.UserRepository
	projects *service.ProjectService
	tasks    *service.TaskService
	agenda   *service.AgendaService
	sessions *sessions
	loc      *time.Location
	now      func() time.Time
}

func New(token string, users *repository.UserRepository, projects *service.ProjectService, tasks *service.TaskService, agenda *service.AgendaService, loc *time.Location) (*Bot, error) {
	client, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	log.Printf("[info] bot authorized on account %s", client.Self.UserName)

	b := newBot(client, users, projects, tasks, agenda, loc)
	b.client = client
	return b, nil
}

func newBot(api sender, users *repository.UserRepository, projects *service.ProjectService, tasks *service.TaskService, agenda *service.AgendaService, loc *time.Location) *Bot {
	if loc == nil {
		loc = time.Local
	}
	return &Bot{
		api:      api,
		users:    users,
		projects: projects,
		tasks:    tasks,
		agenda:   agenda,
		sessions: newSessions(),
		loc:      loc,
		now:      time.Now,
	}
}

// Start polls updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 60
	updates := b.client.GetUpdatesChan(cfg)
	log.Println("[info] polling telegram updates")

	go func() {
		<-ctx.Done()
		b.client.StopReceivingUpdates()
	}()

	for update := range updates {
		b.dispatch(ctx, update)
	}
	return ctx.Err()
}

func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) {
	var err error
	switch {
	case update.CallbackQuery != nil:
		err = b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.Chat != nil && update.Message.Chat.IsPrivate():
		err = b.handleMessage(ctx, update.Message)
	}
	if err != nil {
		log.Printf("[warn] handle update %d: %v", update.UpdateID, err)
	}
}

func (b *Bot) today() date.Date {
	return date.FromTime(b.now().In(b.loc))
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}
	chatID, userID := msg.Chat.ID, msg.From.ID

	if msg.IsCommand() {
		log.Printf("[info] /%s from %d args=%q", msg.Command(), userID, msg.CommandArguments())
		return b.handleCommand(ctx, msg)
	}

	if isCancelDialogInput(msg.Text) {
		b.sessions.reset(userID)
		return b.send(chatID, "⏪ Input cancelled.", mainMenuKeyboard())
	}
	if handled, err := b.handleMenuAlias(ctx, msg); handled {
		return err
	}
	if p, ok := b.sessions.awaiting(userID); ok {
		return b.handleConfirmation(ctx, msg, p)
	}
	if state := b.sessions.dialog(userID); state != nil {
		return b.handleDialogStep(ctx, msg, state)
	}
	return b.send(chatID, "I didn't get that. Use /newtask to add a task or /help for the command list.", mainMenuKeyboard())
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
		return nil
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		log.Printf("[warn] answer callback %s: %v", cb.ID, err)
	}

	kind, prefix := pendingComplete, cbCompletePrefix
	switch {
	case strings.HasPrefix(cb.Data, cbDeletePrefix):
		kind, prefix = pendingDelete, cbDeletePrefix
	case !strings.HasPrefix(cb.Data, cbCompletePrefix):
		return nil
	}
	taskID, err := parseTaskID(cb.Data, prefix)
	if err != nil {
		return nil
	}

	user, err := b.userFrom(ctx, cb.From)
	if err != nil {
		return err
	}
	return b.askConfirmation(ctx, cb.Message.Chat.ID, user, cb.From.ID, pendingAction{taskID: taskID, kind: kind})
}

// SendDailyReports sends the agenda to every known user.
func (b *Bot) SendDailyReports(ctx context.Context) error {
	users, err := b.users.ListAll(ctx)
	if err != nil {
		return err
	}
	now := b.now().In(b.loc)
	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return err
		}
		text, err := b.agenda.DailySummary(ctx, user, now)
		if err != nil {
			log.Printf("[warn] agenda for %d: %v", user.TelegramID, err)
			continue
		}
		if err := b.send(user.TelegramID, text, mainMenuKeyboard()); err != nil {
			log.Printf("[warn] send agenda to %d: %v", user.TelegramID, err)
		}
	}
	return nil
}

func (b *Bot) userFrom(ctx context.Context, from *tgbotapi.User) (*model.User, error) {
	return b.users.UpsertFromTelegram(ctx, from.ID, from.FirstName, from.LastName, from.UserName)
}

// send posts an HTML message with the given keyboard markup.
func (b *Bot) send(chatID int64, text string, markup any) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func parseTaskID(data, prefix string) (uint, error) {
	id, err := strconv.ParseUint(strings.TrimPrefix(data, prefix), 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}
