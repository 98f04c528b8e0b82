package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/hausgeist/hausgeist/internal/agent"
)

// messageLimit is the Bot API's maximum message length. Longer answers
// are split at paragraph boundaries before rendering.
const messageLimit = 4000

const (
	welcomeText = "Hallo! I'm the house bot. Ask me about the weather, " +
		"the wallbox, the washing machine, your todos or the trash " +
		"schedule. /reset starts the conversation over."
	resetText   = "Alright, clean slate. What can I do for you?"
	apologyText = "Sorry, I'm having trouble thinking right now. Please try again in a moment."
	noVoiceText = "Sorry, I can't listen to voice messages right now."
)

// Engine is the conversational core the bot drives.
type Engine interface {
	Respond(ctx context.Context, userID, prompt string) (string, error)
	ResetSession(userID string)
}

// Transcriber converts a voice note into text. Optional; without one
// voice messages get a polite refusal.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// Bot runs the long-poll loop and routes messages into the engine.
type Bot struct {
	client      *Client
	engine      Engine
	transcriber Transcriber
	logger      *slog.Logger
	pollTimeout int
}

// NewBot creates the bot. transcriber may be nil.
func NewBot(client *Client, engine Engine, transcriber Transcriber, pollTimeoutSec int, logger *slog.Logger) *Bot {
	if pollTimeoutSec <= 0 {
		pollTimeoutSec = 50
	}
	return &Bot{
		client:      client,
		engine:      engine,
		transcriber: transcriber,
		logger:      logger,
		pollTimeout: pollTimeoutSec,
	}
}

// Run polls for updates until ctx is canceled. Each message is handled
// on its own goroutine; per-user ordering is the engine's job.
func (b *Bot) Run(ctx context.Context) error {
	me, err := b.client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("verify bot token: %w", err)
	}
	b.logger.Info("telegram bot connected", "username", me.Username, "bot_id", me.ID)

	var offset int64
	for {
		updates, err := b.client.GetUpdates(ctx, offset, b.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			b.logger.Warn("getUpdates failed, backing off", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			if u.Message == nil || u.Message.From == nil || u.Message.From.IsBot {
				continue
			}
			msg := u.Message
			go b.handleMessage(ctx, msg)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *IncomingMessage) {
	userID := strconv.FormatInt(msg.From.ID, 10)
	chatID := msg.Chat.ID
	log := b.logger.With("user_id", userID, "chat_id", chatID)

	text := msg.Text
	if msg.Voice != nil {
		var ok bool
		text, ok = b.transcribe(ctx, msg.Voice, log)
		if !ok {
			b.reply(ctx, chatID, noVoiceText, log)
			return
		}
		log.Info("voice note transcribed", "duration_sec", msg.Voice.Duration, "length", len(text))
	}
	if strings.TrimSpace(text) == "" {
		return
	}

	switch command(text) {
	case "start":
		b.reply(ctx, chatID, welcomeText, log)
		return
	case "reset":
		b.engine.ResetSession(userID)
		log.Info("session reset by user")
		b.reply(ctx, chatID, resetText, log)
		return
	}

	b.client.SendChatAction(ctx, chatID, "typing")

	answer, err := b.engine.Respond(ctx, userID, text)
	if err != nil {
		// Diagnostics go to the log; the user gets a generic apology.
		if !errors.Is(err, agent.ErrProviderUnavailable) {
			log.Error("unexpected engine error", "error", err)
		}
		b.reply(ctx, chatID, apologyText, log)
		return
	}
	b.reply(ctx, chatID, answer, log)
}

// Deliver implements the notifier's delivery contract. User ids are
// numeric chat ids in string form.
func (b *Bot) Deliver(ctx context.Context, userID, text string) error {
	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return fmt.Errorf("user id %q is not a chat id: %w", userID, err)
	}
	for _, chunk := range splitMessage(text, messageLimit) {
		if err := b.client.SendMessage(ctx, chatID, RenderHTML(chunk), chunk); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string, log *slog.Logger) {
	for _, chunk := range splitMessage(text, messageLimit) {
		if err := b.client.SendMessage(ctx, chatID, RenderHTML(chunk), chunk); err != nil {
			log.Error("send failed", "error", err)
			return
		}
	}
}

func (b *Bot) transcribe(ctx context.Context, voice *Voice, log *slog.Logger) (string, bool) {
	if b.transcriber == nil {
		return "", false
	}
	audio, path, err := b.client.DownloadFile(ctx, voice.FileID)
	if err != nil {
		log.Error("voice download failed", "error", err)
		return "", false
	}
	text, err := b.transcriber.Transcribe(ctx, audio, path)
	if err != nil {
		log.Error("transcription failed", "error", err)
		return "", false
	}
	return text, true
}

// command extracts a leading bot command, with the optional @botname
// suffix removed.
func command(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd, _, _ := strings.Cut(text[1:], " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	return strings.ToLower(cmd)
}

// splitMessage breaks text into chunks no longer than limit,
// preferring paragraph and line boundaries.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(text) > limit {
		cut := strings.LastIndex(text[:limit], "\n\n")
		if cut < limit/2 {
			cut = strings.LastIndex(text[:limit], "\n")
		}
		if cut < limit/2 {
			cut = limit
		}
		chunks = append(chunks, strings.TrimSpace(text[:cut]))
		text = strings.TrimSpace(text[cut:])
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
