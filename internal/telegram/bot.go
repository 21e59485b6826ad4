package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/fpang/gemini-video-bot/internal/auth"
	"github.com/fpang/gemini-video-bot/internal/cli"
	"github.com/fpang/gemini-video-bot/internal/delivery"
	"github.com/fpang/gemini-video-bot/internal/intake"
	"github.com/fpang/gemini-video-bot/internal/pipeline"
	"github.com/fpang/gemini-video-bot/internal/store"
)

// Replies for the command layer.
const (
	HelpText = "📌 Gemini Video Bot Commands:\n" +
		"/setkey <API_KEY> - Set or update Gemini API key (owner only)\n" +
		"/checkkey - Validate saved API key\n" +
		"/reset - Remove saved API key\n" +
		"/generate or /video - Start the interactive generate flow\n" +
		"/status - Show current saved settings\n" +
		"/history - Show last 5 generated videos\n" +
		"/jobs - Show recent jobs and how they ended\n" +
		"/cancel - Cancel running generation\n" +
		"/help - This message"

	MsgNotAuthorized    = "❌ Not authorized."
	MsgSetKeyUsage      = "Usage: /setkey <YOUR_GEMINI_API_KEY>"
	MsgValidatingKey    = "🔎 Validating API key..."
	MsgKeySaved         = "✅ API key saved. Use /generate to start."
	MsgNoKeySaved       = "⚠️ No API key saved. Use /setkey first."
	MsgCheckingKey      = "🔎 Checking API key..."
	MsgKeyValid         = "✅ API key is valid."
	MsgSettingsCleared  = "✅ All settings cleared."
	MsgKeyRequired      = "⚠️ Please set your Gemini API key first with /setkey <API_KEY>"
	MsgEmptyPrompt      = "❌ Prompt cannot be empty."
	MsgInvalidDuration  = "❌ Invalid duration. Please run /generate again and provide a number between 1 and 60."
	MsgGenerationQueued = "🚀 Generation started. You'll get progress updates here."
	MsgCancelRequested  = "🛑 Cancel requested. Attempting to stop the job..."
	MsgHistoryEmpty     = "⚠️ History empty."
	MsgNoJobs           = "⚠️ No jobs recorded."
	MsgUnknownCommand   = "🤔 Unknown command. Send /help for the list."
)

// Jobs is the orchestrator surface the bot drives.
type Jobs interface {
	StartJob(identity string, req pipeline.Request, dest pipeline.Destination) (*pipeline.JobHandle, error)
	Cancel(id string) error
	Status() (pipeline.Snapshot, bool)
	LastFinished() (pipeline.Snapshot, bool)
	History(identity string) []pipeline.HistoryEntry
}

// KeyValidator checks a Gemini API key.
type KeyValidator interface {
	Validate(ctx context.Context, apiKey string) error
}

// Option configures a Bot.
type Option func(*Bot)

// WithArchive copies every delivered video to d as well as the chat.
func WithArchive(d pipeline.Deliverer) Option {
	return func(b *Bot) { b.archive = d }
}

// WithRecords enables /jobs, backed by rec.
func WithRecords(rec store.JobStore) Option {
	return func(b *Bot) { b.records = rec }
}

// WithNow replaces time.Now for elapsed-time rendering.
func WithNow(now func() time.Time) Option {
	return func(b *Bot) { b.now = now }
}

// Bot dispatches owner commands and drives the input form.
type Bot struct {
	client    *Client
	owner     int64
	jobs      Jobs
	settings  *intake.SettingsStore
	validator KeyValidator
	archive   pipeline.Deliverer
	records   store.JobStore
	now       func() time.Time

	mu    sync.Mutex
	forms map[int64]*intake.Form

	// background tracks key checks running outside the update loop.
	background sync.WaitGroup
}

func NewBot(client *Client, owner int64, jobs Jobs, settings *intake.SettingsStore, validator KeyValidator, opts ...Option) *Bot {
	b := &Bot{
		client:    client,
		owner:     owner,
		jobs:      jobs,
		settings:  settings,
		validator: validator,
		now:       time.Now,
		forms:     make(map[int64]*intake.Form),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run handles updates until ctx is done or the channel is closed.
// Key checks call Gemini and run in the background so a slow answer never
// holds up /cancel or /status. Run waits for them before returning.
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) error {
	defer b.background.Wait()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			if u.Message == nil {
				continue
			}
			if callsGemini(u.Message) {
				msg := u.Message
				b.background.Add(1)
				go func() {
					defer b.background.Done()
					b.HandleMessage(ctx, msg)
				}()
				continue
			}
			b.HandleMessage(ctx, u.Message)
		}
	}
}

// callsGemini reports whether msg is a command that validates a key remotely.
func callsGemini(msg *tgbotapi.Message) bool {
	if !msg.IsCommand() {
		return false
	}
	switch msg.Command() {
	case "setkey", "checkkey":
		return true
	}
	return false
}

// HandleMessage processes one incoming message. Only private chats are served.
func (b *Bot) HandleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil || !msg.Chat.IsPrivate() {
		return
	}
	chatID := msg.Chat.ID

	if msg.IsCommand() {
		cmd := msg.Command()
		log.Debug().Int64("chat", chatID).Str("command", cmd).Msg("Command received")
		if cmd == "help" || cmd == "start" {
			b.client.Reply(ctx, chatID, HelpText)
			return
		}
		if !b.isOwner(msg) {
			b.client.Reply(ctx, chatID, MsgNotAuthorized)
			return
		}
		b.dispatch(ctx, msg, cmd)
		return
	}

	if !b.isOwner(msg) {
		return
	}
	b.answer(ctx, msg)
}

func (b *Bot) isOwner(msg *tgbotapi.Message) bool {
	return msg.From != nil && msg.From.ID == b.owner
}

func identityOf(msg *tgbotapi.Message) string {
	return strconv.FormatInt(msg.From.ID, 10)
}

func (b *Bot) dispatch(ctx context.Context, msg *tgbotapi.Message, cmd string) {
	switch cmd {
	case "setkey":
		b.setKey(ctx, msg)
	case "checkkey":
		b.checkKey(ctx, msg)
	case "reset":
		b.reset(ctx, msg)
	case "generate", "video":
		b.startForm(ctx, msg)
	case "status":
		b.status(ctx, msg)
	case "history":
		b.history(ctx, msg)
	case "jobs":
		b.jobList(ctx, msg)
	case "cancel":
		b.cancel(ctx, msg)
	default:
		b.client.Reply(ctx, msg.Chat.ID, MsgUnknownCommand)
	}
}

func (b *Bot) setKey(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	key := strings.TrimSpace(msg.CommandArguments())
	if key == "" {
		b.client.Reply(ctx, chatID, MsgSetKeyUsage)
		return
	}

	// The key should not stay in the chat history.
	if err := b.client.Request(ctx, chatID, tgbotapi.NewDeleteMessage(chatID, msg.MessageID)); err != nil {
		log.Debug().Err(err).Msg("Could not delete /setkey message")
	}

	b.client.Reply(ctx, chatID, MsgValidatingKey)
	if err := b.validator.Validate(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", auth.MaskKey(key)).Msg("Rejected API key")
		b.client.Reply(ctx, chatID, keyErrorText(err))
		return
	}
	b.settings.SetAPIKey(identityOf(msg), key)
	log.Info().Str("key", auth.MaskKey(key)).Msg("API key saved")
	b.client.Reply(ctx, chatID, MsgKeySaved)
}

func (b *Bot) checkKey(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	key := b.settings.Get(identityOf(msg)).APIKey
	if key == "" {
		b.client.Reply(ctx, chatID, MsgNoKeySaved)
		return
	}
	b.client.Reply(ctx, chatID, MsgCheckingKey)
	if err := b.validator.Validate(ctx, key); err != nil {
		b.client.Reply(ctx, chatID, keyErrorText(err))
		return
	}
	b.client.Reply(ctx, chatID, MsgKeyValid)
}

// keyErrorText renders a validation failure for the chat.
func keyErrorText(err error) string {
	var v *auth.ValidationError
	if !errors.As(err, &v) {
		return "❌ Could not validate API key: " + err.Error()
	}
	switch v.Type {
	case auth.ErrTypeInvalidKey:
		return "❌ Invalid API key. Please check and try again."
	case auth.ErrTypeQuotaExceeded:
		return "⛔ API key is valid but its quota is exhausted. Try later or enable billing."
	case auth.ErrTypeNetworkError:
		return "⚠️ Network error while checking the key. Please try again."
	case auth.ErrTypeNoKey:
		return MsgSetKeyUsage
	default:
		return "❌ Could not validate API key: " + v.Message
	}
}

func (b *Bot) reset(ctx context.Context, msg *tgbotapi.Message) {
	b.settings.Reset(identityOf(msg))
	b.mu.Lock()
	delete(b.forms, msg.Chat.ID)
	b.mu.Unlock()
	b.client.Reply(ctx, msg.Chat.ID, MsgSettingsCleared)
}

func (b *Bot) startForm(ctx context.Context, msg *tgbotapi.Message) {
	if b.settings.Get(identityOf(msg)).APIKey == "" {
		b.client.Reply(ctx, msg.Chat.ID, MsgKeyRequired)
		return
	}
	b.mu.Lock()
	b.forms[msg.Chat.ID] = intake.NewForm()
	b.mu.Unlock()
	b.client.Reply(ctx, msg.Chat.ID, intake.AskPrompt)
}

// answer feeds a plain-text message into the chat's open form, if any.
func (b *Bot) answer(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	b.mu.Lock()
	form, ok := b.forms[chatID]
	if !ok {
		b.mu.Unlock()
		return
	}
	field := form.Awaiting()
	next, err := form.Feed(msg.Text)
	if err != nil || form.Awaiting() == intake.Complete {
		delete(b.forms, chatID)
	}
	b.mu.Unlock()

	if err != nil {
		if field == intake.AwaitingPrompt {
			b.client.Reply(ctx, chatID, MsgEmptyPrompt)
		} else {
			b.client.Reply(ctx, chatID, MsgInvalidDuration)
		}
		return
	}
	if next != "" {
		b.client.Reply(ctx, chatID, next)
		return
	}

	identity := identityOf(msg)
	b.settings.SaveValues(identity, form.Values())
	b.launch(ctx, chatID, identity)
}

func (b *Bot) launch(ctx context.Context, chatID int64, identity string) {
	var deliverer pipeline.Deliverer = NewChatDeliverer(b.client, chatID)
	if b.archive != nil {
		deliverer = &delivery.Tee{Primary: deliverer, Archive: b.archive}
	}
	dest := pipeline.Destination{
		Status:   NewChatStatus(b.client, chatID),
		Delivery: deliverer,
	}

	handle, err := b.jobs.StartJob(identity, b.settings.Get(identity).Request(), dest)
	if err != nil {
		b.client.Reply(ctx, chatID, pipeline.UserMessage(err))
		return
	}
	log.Info().Str("job", handle.ID).Int64("chat", chatID).Msg("Generation started from chat")
	b.client.Reply(ctx, chatID, MsgGenerationQueued)
}

func (b *Bot) status(ctx context.Context, msg *tgbotapi.Message) {
	b.client.Reply(ctx, msg.Chat.ID, b.StatusText(identityOf(msg)))
}

// StatusText renders the saved settings and the running job.
func (b *Bot) StatusText(identity string) string {
	s := b.settings.Get(identity)

	apiKey := "Not set"
	if s.APIKey != "" {
		apiKey = "Set (" + auth.MaskKey(s.APIKey) + ")"
	}
	prompt := orNotSet(s.Prompt)
	aspect := orNotSet(string(s.AspectRatio))
	duration := "Not set"
	if s.DurationSeconds > 0 {
		duration = fmt.Sprintf("%ds", s.DurationSeconds)
	}

	running := "No"
	if snap, ok := b.jobs.Status(); ok {
		running = fmt.Sprintf("Yes (%s, %s)", snap.State, cli.FormatDurationShort(b.now().Sub(snap.StartedAt)))
		if snap.CancelRequested {
			running += ", cancelling"
		}
	}

	text := fmt.Sprintf("📌 Status:\nAPI Key: %s\nPrompt: %s\nAspect Ratio: %s\nDuration: %s\nGeneration running: %s",
		apiKey, prompt, aspect, duration, running)

	if last, ok := b.jobs.LastFinished(); ok {
		text += fmt.Sprintf("\nLast job: %s after %s", last.State, cli.FormatDurationShort(last.UpdatedAt.Sub(last.StartedAt)))
		if last.AssetBytes > 0 {
			text += " (" + cli.FormatBytes(last.AssetBytes) + ")"
		}
	}
	return text
}

func orNotSet(s string) string {
	if s == "" {
		return "Not set"
	}
	return s
}

func (b *Bot) history(ctx context.Context, msg *tgbotapi.Message) {
	entries := b.jobs.History(identityOf(msg))
	if len(entries) == 0 {
		b.client.Reply(ctx, msg.Chat.ID, MsgHistoryEmpty)
		return
	}
	b.client.Reply(ctx, msg.Chat.ID, HistoryText(entries))
}

// HistoryText renders ledger entries oldest first.
func HistoryText(entries []pipeline.HistoryEntry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📜 Last %d generated videos:", len(entries))
	for i, e := range entries {
		fmt.Fprintf(&sb, "\n%d. %s - %s", i+1, e.Timestamp.Format("2006-01-02 15:04:05"), e.ResultReference)
	}
	return sb.String()
}

// recentJobs is how many records /jobs shows.
const recentJobs = 5

func (b *Bot) jobList(ctx context.Context, msg *tgbotapi.Message) {
	if b.records == nil {
		b.client.Reply(ctx, msg.Chat.ID, MsgNoJobs)
		return
	}
	recs, err := b.records.ListJobs(ctx, identityOf(msg), recentJobs)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list job records")
		b.client.Reply(ctx, msg.Chat.ID, "❌ Could not load jobs: "+err.Error())
		return
	}
	if len(recs) == 0 {
		b.client.Reply(ctx, msg.Chat.ID, MsgNoJobs)
		return
	}
	b.client.Reply(ctx, msg.Chat.ID, JobsText(recs))
}

// JobsText renders job records newest first.
func JobsText(recs []*store.JobRecord) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🗂 Last %d jobs:", len(recs))
	for i, r := range recs {
		started := time.Unix(r.StartedAt, 0).UTC().Format("2006-01-02 15:04:05")
		fmt.Fprintf(&sb, "\n%d. %s %s", i+1, started, r.State)
		if r.ErrorKind != "" {
			fmt.Fprintf(&sb, " (%s)", r.ErrorKind)
		}
		fmt.Fprintf(&sb, " - %s", r.Prompt)
	}
	return sb.String()
}

func (b *Bot) cancel(ctx context.Context, msg *tgbotapi.Message) {
	if err := b.jobs.Cancel(""); err != nil {
		b.client.Reply(ctx, msg.Chat.ID, pipeline.UserMessage(err))
		return
	}
	b.client.Reply(ctx, msg.Chat.ID, MsgCancelRequested)
}
