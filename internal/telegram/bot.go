// Package telegram is the chat front-end: a single allow-listed user talks
// to the agent, with voice messages transcribed and journaled into the vault.
package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/jpoliachik/jpos-agent/internal/agent"
	"github.com/jpoliachik/jpos-agent/internal/transcription"
	"github.com/jpoliachik/jpos-agent/internal/vault"
)

// AgentService is the orchestration surface the bot calls into.
type AgentService interface {
	Handle(ctx context.Context, externalID, prompt, systemContext string, onProgress func(agent.ProgressEvent)) (string, error)
	Reset(externalID string)
}

// NoteAppender journals voice transcripts into the vault.
type NoteAppender interface {
	AppendEntry(ctx context.Context, e vault.Entry) (vault.AppendResult, error)
}

// Transcriber turns an audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (transcription.Result, error)
}

// Bot handles updates for exactly one allow-listed user. Updates from anyone
// else are dropped before any handler runs.
type Bot struct {
	api           *tgbotapi.BotAPI
	svc           AgentService
	notes         NoteAppender
	transcriber   Transcriber
	allowedUserID int64
}

// New creates the bot. transcriber may be nil when transcription is not
// configured; voice messages then get a polite refusal.
func New(token string, allowedUserID int64, svc AgentService, notes NoteAppender, transcriber Transcriber) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}
	return &Bot{
		api:           api,
		svc:           svc,
		notes:         notes,
		transcriber:   transcriber,
		allowedUserID: allowedUserID,
	}, nil
}

// Run consumes updates until the context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	slog.Info("telegram bot started", slog.String("username", b.api.Self.UserName))

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := b.api.GetUpdatesChan(cfg)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

// Send delivers a message to the allow-listed user. Implements the cron
// job's Notifier.
func (b *Bot) Send(text string) error {
	msg := tgbotapi.NewMessage(b.allowedUserID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	return nil
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	if msg.From.ID != b.allowedUserID {
		slog.Warn("rejected unauthorized user", slog.Int64("user_id", msg.From.ID))
		return
	}

	externalID := fmt.Sprintf("telegram:%d", msg.From.ID)

	switch {
	case msg.IsCommand():
		b.handleCommand(externalID, msg)
	case msg.Voice != nil:
		b.handleVoice(ctx, externalID, msg)
	case msg.Text != "":
		b.handleText(ctx, externalID, msg)
	}
}

func (b *Bot) handleCommand(externalID string, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.reply(msg, "Agent ready. Send me a message to start a conversation.\n\n"+
			"Commands:\n/new - Start a fresh conversation\n/status - Check agent status")
	case "new":
		b.svc.Reset(externalID)
		b.reply(msg, "Session cleared. Starting fresh conversation.")
	case "status":
		b.reply(msg, "Agent is running.")
	default:
		b.reply(msg, "Unknown command.")
	}
}

func (b *Bot) handleText(ctx context.Context, externalID string, msg *tgbotapi.Message) {
	b.typing(msg.Chat.ID)

	result, err := b.svc.Handle(ctx, externalID, msg.Text, "", func(agent.ProgressEvent) {})
	if err != nil {
		slog.Error("agent error", slog.String("error", err.Error()))
		b.reply(msg, fmt.Sprintf("Error: %s", err))
		return
	}
	if result == "" {
		result = "Done."
	}
	b.reply(msg, result)
}

// handleVoice downloads the voice file, transcribes it, journals the
// transcript keyed by the message id (so Telegram redeliveries cannot write
// it twice), and hands the transcript to the agent.
func (b *Bot) handleVoice(ctx context.Context, externalID string, msg *tgbotapi.Message) {
	if b.transcriber == nil {
		b.reply(msg, "Voice transcription is not configured.")
		return
	}
	b.typing(msg.Chat.ID)

	audioPath, err := b.downloadVoice(ctx, msg.Voice.FileID)
	if err != nil {
		slog.Error("voice download failed", slog.String("error", err.Error()))
		b.reply(msg, fmt.Sprintf("Error: %s", err))
		return
	}
	defer os.Remove(audioPath)

	tr, err := b.transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		slog.Error("transcription failed", slog.String("error", err.Error()))
		b.reply(msg, fmt.Sprintf("Error: %s", err))
		return
	}

	res, err := b.notes.AppendEntry(ctx, vault.Entry{
		Transcript: tr.Text,
		Duration:   tr.Duration,
		DedupID:    fmt.Sprintf("tg-%d", msg.MessageID),
	})
	if err != nil {
		slog.Error("voice note append failed", slog.String("error", err.Error()))
		b.reply(msg, fmt.Sprintf("Error: %s", err))
		return
	}
	if res.Duplicate {
		b.reply(msg, "Already logged that one.")
		return
	}

	result, err := b.svc.Handle(ctx, externalID, tr.Text, voiceContext(), func(agent.ProgressEvent) {})
	if err != nil {
		b.reply(msg, fmt.Sprintf("Transcript saved. Agent error: %s", err))
		return
	}
	b.reply(msg, result)
}

func (b *Bot) downloadVoice(ctx context.Context, fileID string) (string, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return "", fmt.Errorf("telegram: resolve file url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("telegram: build download request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("telegram: download voice file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("telegram: download voice file: %s", resp.Status)
	}

	out := filepath.Join(os.TempDir(), fmt.Sprintf("voice-%d.oga", time.Now().UnixNano()))
	f, err := os.Create(out)
	if err != nil {
		return "", fmt.Errorf("telegram: create temp file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		os.Remove(out)
		return "", fmt.Errorf("telegram: write temp file: %w", err)
	}
	return out, nil
}

func (b *Bot) reply(msg *tgbotapi.Message, text string) {
	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	out.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(out); err != nil {
		// Markdown parse failures are common with model output; retry plain.
		out.ParseMode = ""
		if _, err := b.api.Send(out); err != nil {
			slog.Error("telegram reply failed", slog.String("error", err.Error()))
		}
	}
}

func (b *Bot) typing(chatID int64) {
	action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	if _, err := b.api.Request(action); err != nil {
		slog.Debug("typing action failed", slog.String("error", err.Error()))
	}
}

func voiceContext() string {
	return `You are processing a voice journal entry the user just recorded.
Analyze this transcript and:
1. Identify any actionable items or tasks mentioned
2. Create Todoist tasks for any action items
3. Summarize key insights or reflections
4. Note any follow-ups needed

Be concise in your response.`
}
