package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gorm.io/gorm"

	"crm-planner/internal/model"
	"crm-planner/internal/service"
)

const (
	defaultCalendarDays = 7
	maxCalendarDays     = 31
)

const helpText = "• /newtask — add a task step by step\n" +
	"• /tasks — open tasks with complete and delete buttons\n" +
	"• /complete &lt;id&gt; — mark a task done; recurring tasks get their next instance\n" +
	"• /calendar [days] — what is scheduled for the coming days\n" +
	"• /delete &lt;id&gt; — delete a task\n" +
	"• /projects — your projects\n" +
	"• /report — today's agenda\n" +
	"• /cancel — stop the current input"

const msgTaskNotFound = "Task not found."

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	chatID := msg.Chat.ID
	switch msg.Command() {
	case "start":
		return b.cmdStart(ctx, msg)
	case "help":
		return b.send(chatID, "ℹ️ <b>Commands</b>\n"+helpText, mainMenuKeyboard())
	case "newtask":
		return b.cmdNewTask(ctx, msg)
	case "tasks":
		return b.withUser(ctx, msg, func(user *model.User) error {
			return b.sendTaskList(ctx, chatID, user)
		})
	case "complete":
		return b.cmdComplete(ctx, msg)
	case "calendar":
		return b.cmdCalendar(ctx, msg)
	case "delete":
		return b.cmdDelete(ctx, msg)
	case "projects":
		return b.cmdProjects(ctx, msg)
	case "report":
		return b.cmdReport(ctx, msg)
	case "cancel":
		b.sessions.reset(msg.From.ID)
		return b.send(chatID, "⏪ Input cancelled.", mainMenuKeyboard())
	}
	return b.send(chatID, "Unknown command. See /help.", mainMenuKeyboard())
}

// withUser resolves the sender before running fn.
func (b *Bot) withUser(ctx context.Context, msg *tgbotapi.Message, fn func(*model.User) error) error {
	user, err := b.userFrom(ctx, msg.From)
	if err != nil {
		return err
	}
	return fn(user)
}

func (b *Bot) cmdStart(ctx context.Context, msg *tgbotapi.Message) error {
	return b.withUser(ctx, msg, func(user *model.User) error {
		name := strings.TrimSpace(user.FirstName)
		if name == "" {
			name = "there"
		}
		text := fmt.Sprintf("👋 Hi, %s!\n<b>I keep track of your CRM tasks and their repeats.</b>\n\n%s", escape(name), helpText)
		return b.send(msg.Chat.ID, text, mainMenuKeyboard())
	})
}

func (b *Bot) cmdReport(ctx context.Context, msg *tgbotapi.Message) error {
	return b.withUser(ctx, msg, func(user *model.User) error {
		text, err := b.agenda.DailySummary(ctx, *user, b.now().In(b.loc))
		if err != nil {
			text = "Could not build the agenda: " + escape(err.Error())
		}
		return b.send(msg.Chat.ID, text, mainMenuKeyboard())
	})
}

func (b *Bot) cmdNewTask(ctx context.Context, msg *tgbotapi.Message) error {
	return b.withUser(ctx, msg, func(user *model.User) error {
		projects, err := b.projects.List(ctx, user)
		if err != nil {
			log.Printf("[warn] list projects user=%d: %v", user.ID, err)
		}
		names := make([]string, 0, len(projects))
		for _, p := range projects {
			names = append(names, p.Name)
		}

		state := newConversation(names)
		b.sessions.beginDialog(msg.From.ID, state)
		r := state.start()
		return b.send(msg.Chat.ID, r.text, r.markup)
	})
}

func (b *Bot) handleDialogStep(ctx context.Context, msg *tgbotapi.Message, state *conversationState) error {
	r := state.step(msg.Text, b.today())
	if !r.done {
		return b.send(msg.Chat.ID, r.text, r.markup)
	}
	b.sessions.endDialog(msg.From.ID)

	return b.withUser(ctx, msg, func(user *model.User) error {
		task, err := b.tasks.CreateTask(ctx, user, state.input)
		if err != nil {
			return b.send(msg.Chat.ID, "Could not save the task: "+escape(err.Error()), tgbotapi.NewRemoveKeyboard(true))
		}
		log.Printf("[info] task %d created via dialog user=%d", task.ID, user.ID)
		if err := b.send(msg.Chat.ID, formatCreated(task), tgbotapi.NewRemoveKeyboard(true)); err != nil {
			return err
		}
		return b.sendTaskList(ctx, msg.Chat.ID, user)
	})
}

func (b *Bot) cmdComplete(ctx context.Context, msg *tgbotapi.Message) error {
	taskID, ok := b.argTaskID(msg, "/complete 12")
	if !ok {
		return nil
	}
	return b.withUser(ctx, msg, func(user *model.User) error {
		return b.send(msg.Chat.ID, b.complete(ctx, user, taskID), mainMenuKeyboard())
	})
}

// complete runs the completion and describes the outcome.
func (b *Bot) complete(ctx context.Context, user *model.User, taskID uint) string {
	result, err := b.tasks.CompleteTask(ctx, user, taskID, b.now(), "")
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return msgTaskNotFound
	case errors.Is(err, service.ErrAlreadyDone):
		return "That task is already done."
	case errors.Is(err, service.ErrAdvanceFailed):
		return fmt.Sprintf("✅ «%s» done.\n⚠️ The next instance could not be created yet; the nightly run will try again.",
			escape(normalizeTitle(result.Task.Title)))
	case err != nil:
		return "Error: " + escape(err.Error())
	}

	var next *model.Task
	if id, ok := result.NextInstance.Get(); ok {
		if next, err = b.tasks.GetTask(ctx, user, id); err != nil {
			log.Printf("[warn] load next instance %d: %v", id, err)
			next = nil
		}
	}
	return formatCompletion(result.Task, next)
}

func (b *Bot) cmdCalendar(ctx context.Context, msg *tgbotapi.Message) error {
	days := defaultCalendarDays
	if arg := strings.TrimSpace(msg.CommandArguments()); arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 || n > maxCalendarDays {
			return b.send(msg.Chat.ID, fmt.Sprintf("Number of days must be from 1 to %d, e.g. /calendar 14", maxCalendarDays), mainMenuKeyboard())
		}
		days = n
	}

	return b.withUser(ctx, msg, func(user *model.User) error {
		from := b.today()
		to := from.AddDays(days - 1)
		var text string
		entries, err := b.tasks.Calendar(ctx, user, from, to)
		if err != nil {
			text = "Could not build the calendar: " + escape(err.Error())
		} else {
			text = formatCalendar(entries, from, to)
		}
		return b.send(msg.Chat.ID, text, mainMenuKeyboard())
	})
}

func (b *Bot) cmdProjects(ctx context.Context, msg *tgbotapi.Message) error {
	return b.withUser(ctx, msg, func(user *model.User) error {
		projects, err := b.projects.List(ctx, user)
		if err != nil {
			return b.send(msg.Chat.ID, "Could not load projects: "+escape(err.Error()), mainMenuKeyboard())
		}
		if len(projects) == 0 {
			return b.send(msg.Chat.ID, "No projects yet. Name one when you create a task.", mainMenuKeyboard())
		}
		lines := []string{"📂 <b>Projects</b>"}
		for _, p := range projects {
			lines = append(lines, "• "+escape(strings.TrimSpace(p.Name)))
		}
		return b.send(msg.Chat.ID, strings.Join(lines, "\n"), mainMenuKeyboard())
	})
}

func (b *Bot) cmdDelete(ctx context.Context, msg *tgbotapi.Message) error {
	taskID, ok := b.argTaskID(msg, "/delete 12")
	if !ok {
		return nil
	}
	return b.withUser(ctx, msg, func(user *model.User) error {
		return b.askConfirmation(ctx, msg.Chat.ID, user, msg.From.ID, pendingAction{taskID: taskID, kind: pendingDelete})
	})
}

// argTaskID reads the task id argument and answers the user when it is
// missing or malformed.
func (b *Bot) argTaskID(msg *tgbotapi.Message, example string) (uint, bool) {
	arg := strings.TrimSpace(msg.CommandArguments())
	if arg == "" {
		_ = b.send(msg.Chat.ID, "Give the task ID: "+example, mainMenuKeyboard())
		return 0, false
	}
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil || id == 0 {
		_ = b.send(msg.Chat.ID, "The task ID must be a number.", mainMenuKeyboard())
		return 0, false
	}
	return uint(id), true
}

func (b *Bot) askConfirmation(ctx context.Context, chatID int64, user *model.User, telegramID int64, p pendingAction) error {
	task, err := b.tasks.GetTask(ctx, user, p.taskID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return b.send(chatID, msgTaskNotFound, mainMenuKeyboard())
	}
	if err != nil {
		return err
	}

	title := escape(normalizeTitle(task.Title))
	var text string
	switch p.kind {
	case pendingComplete:
		if task.IsDone() {
			return b.send(chatID, "That task is already done.", mainMenuKeyboard())
		}
		text = fmt.Sprintf("Mark «%s» (#%d) as done?", title, task.ID)
	case pendingDelete:
		text = fmt.Sprintf("Delete «%s» (#%d)?", title, task.ID)
		if task.IsRecurring {
			text += "\nOther instances of the series stay."
		}
	}
	b.sessions.await(telegramID, p)
	return b.send(chatID, text, confirmKeyboard())
}

func (b *Bot) handleConfirmation(ctx context.Context, msg *tgbotapi.Message, p pendingAction) error {
	chatID, userID := msg.Chat.ID, msg.From.ID
	switch {
	case isConfirmInput(msg.Text):
		b.sessions.take(userID)
	case isCancelInput(msg.Text):
		b.sessions.take(userID)
		return b.send(chatID, "Okay, nothing changed.", mainMenuKeyboard())
	default:
		verb := "completing"
		if p.kind == pendingDelete {
			verb = "deleting"
		}
		return b.send(chatID, "Confirm or cancel "+verb+" the task.", confirmKeyboard())
	}

	return b.withUser(ctx, msg, func(user *model.User) error {
		var text string
		if p.kind == pendingDelete {
			text = b.delete(ctx, user, p.taskID)
		} else {
			text = b.complete(ctx, user, p.taskID)
		}
		if err := b.send(chatID, text, tgbotapi.NewRemoveKeyboard(true)); err != nil {
			return err
		}
		return b.sendTaskList(ctx, chatID, user)
	})
}

func (b *Bot) delete(ctx context.Context, user *model.User, taskID uint) string {
	task, err := b.tasks.GetTask(ctx, user, taskID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "Task not found or already deleted."
	}
	if err == nil {
		err = b.tasks.DeleteTask(ctx, user, taskID)
	}
	if err != nil {
		return "Error: " + escape(err.Error())
	}
	log.Printf("[info] task %d deleted user=%d", task.ID, user.ID)
	return fmt.Sprintf("🗑 «%s» deleted.", escape(normalizeTitle(task.Title)))
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	switch normalizeInput(msg.Text) {
	case normalizeInput(menuLabelNewTask):
		return true, b.cmdNewTask(ctx, msg)
	case normalizeInput(menuLabelTasks):
		return true, b.withUser(ctx, msg, func(user *model.User) error {
			return b.sendTaskList(ctx, msg.Chat.ID, user)
		})
	case normalizeInput(menuLabelCalendar):
		return true, b.cmdCalendar(ctx, msg)
	case normalizeInput(menuLabelHelp):
		return true, b.send(msg.Chat.ID, "ℹ️ <b>Commands</b>\n"+helpText, mainMenuKeyboard())
	}
	return false, nil
}

// sendTaskList shows open tasks grouped by project, each with complete
// and delete buttons.
func (b *Bot) sendTaskList(ctx context.Context, chatID int64, user *model.User) error {
	tasks, err := b.tasks.ListActive(ctx, user)
	if err != nil {
		return b.send(chatID, "Could not load tasks: "+escape(err.Error()), mainMenuKeyboard())
	}
	if len(tasks) == 0 {
		return b.send(chatID, "No open tasks. Add one with /newtask.", mainMenuKeyboard())
	}

	names, err := b.projects.Names(ctx, user)
	if err != nil {
		log.Printf("[warn] project names user=%d: %v", user.ID, err)
	}
	today := b.today()

	var sb strings.Builder
	sb.WriteString("📋 <b>Open tasks</b>\nUse the buttons to complete or delete a task.\n\n")
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, group := range groupByProject(tasks, names) {
		fmt.Fprintf(&sb, "<b>📂 %s</b>\n", escape(group.Name))
		for _, task := range group.Tasks {
			sb.WriteString(formatTask(task, today))
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("✅ #%d · %s", task.ID, shortTitle(task.Title, 20)), cbCompletePrefix+strconv.FormatUint(uint64(task.ID), 10)),
				tgbotapi.NewInlineKeyboardButtonData("🗑", cbDeletePrefix+strconv.FormatUint(uint64(task.ID), 10)),
			))
		}
	}
	return b.send(chatID, strings.TrimSpace(sb.String()), tgbotapi.NewInlineKeyboardMarkup(rows...))
}
