// Package discord provides the Discord bot layer for ppmusicbot. It owns
// the discordgo.Session lifecycle, routes slash command and component
// interactions to registered handlers, and forwards voice presence changes
// to the telemetry writer.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/ppmusicbot/ppmusicbot/internal/config"
	"github.com/ppmusicbot/ppmusicbot/internal/telemetry"
)

// recordTimeout bounds a single voice event hand-off, including any flush
// and reconnect it triggers. A failing insert holds the handler for the whole
// backoff cycle (31s with the default 5 retries from a 1s base).
const recordTimeout = time.Minute

// VoiceRecorder receives voice presence changes. *telemetry.Writer
// satisfies it.
type VoiceRecorder interface {
	Record(ctx context.Context, ev telemetry.VoiceEvent) error
}

// Bot owns the Discord gateway connection and routes interactions
// to registered command handlers.
type Bot struct {
	mu        sync.RWMutex
	session   *discordgo.Session
	router    *CommandRouter
	perms     *PermissionChecker
	recorder  VoiceRecorder
	guildID   string
	commands  []*discordgo.ApplicationCommand
	closeOnce sync.Once
}

// New creates a Bot, connects to Discord, and registers the interaction and
// voice state handlers. recorder may be nil, in which case voice events are
// dropped.
func New(_ context.Context, cfg config.DiscordConfig, recorder VoiceRecorder) (*Bot, error) {
	session, err := newSession(cfg.Token)
	if err != nil {
		return nil, err
	}

	b := &Bot{
		session:  session,
		router:   NewCommandRouter(),
		perms:    NewPermissionChecker(cfg.DJRoleID),
		recorder: recorder,
		guildID:  cfg.GuildID,
	}

	session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		b.router.Handle(s, i)
	})
	session.AddHandler(func(_ *discordgo.Session, v *discordgo.VoiceStateUpdate) {
		b.onVoiceStateUpdate(v)
	})

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord: open session: %w", err)
	}
	return b, nil
}

// newSession creates an unopened gateway session. Handlers run on their own
// goroutine per event, so a handler that blocks on a telemetry flush does not
// stall the gateway read loop.
func newSession(token string) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	session.SyncEvents = false
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates
	return session, nil
}

// GuildID returns the guild commands are registered in. Empty means global.
func (b *Bot) GuildID() string {
	return b.guildID
}

// Session returns the underlying discordgo session.
func (b *Bot) Session() *discordgo.Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.session
}

// Router returns the command router for registering handlers.
func (b *Bot) Router() *CommandRouter {
	return b.router
}

// Permissions returns the permission checker.
func (b *Bot) Permissions() *PermissionChecker {
	return b.perms
}

// Run registers slash commands with the Discord API and blocks until
// ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.RLock()
	appID := b.session.State.User.ID
	b.mu.RUnlock()

	cmds := b.router.ApplicationCommands()
	if len(cmds) > 0 {
		registered, err := b.session.ApplicationCommandBulkOverwrite(appID, b.guildID, cmds)
		if err != nil {
			return fmt.Errorf("discord: register commands: %w", err)
		}
		b.mu.Lock()
		b.commands = registered
		b.mu.Unlock()
		slog.Info("discord commands registered", "count", len(registered), "guild_id", b.guildID)
	}

	<-ctx.Done()
	return nil
}

// Close disconnects from Discord. Guild-scoped commands are unregistered;
// global commands are kept because they take up to an hour to propagate.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if b.session != nil && b.guildID != "" && len(b.commands) > 0 {
			appID := b.session.State.User.ID
			for _, cmd := range b.commands {
				if err := b.session.ApplicationCommandDelete(appID, b.guildID, cmd.ID); err != nil {
					slog.Warn("discord: failed to delete command", "name", cmd.Name, "err", err)
				}
			}
		}

		if b.session != nil {
			if err := b.session.Close(); err != nil {
				closeErr = fmt.Errorf("discord: close session: %w", err)
			}
		}

		slog.Info("discord bot closed")
	})
	return closeErr
}

func (b *Bot) onVoiceStateUpdate(v *discordgo.VoiceStateUpdate) {
	if b.recorder == nil {
		return
	}
	ev, ok := VoiceEventFrom(v, time.Now())
	if !ok {
		return
	}

	// Record flushes inline once the batch is full. On a failed insert this
	// blocks the handler goroutine through the reconnect backoff, up to
	// recordTimeout; the session dispatches events asynchronously so other
	// events keep flowing meanwhile.
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := b.recorder.Record(ctx, ev); err != nil {
		slog.Warn("discord: failed to record voice event",
			"user_id", ev.UserID,
			"guild_id", ev.GuildID,
			"err", err)
	}
}
