// Package commands implements the Discord slash commands and message
// components of ppmusicbot.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/ppmusicbot/ppmusicbot/internal/discord"
	"github.com/ppmusicbot/ppmusicbot/internal/queue"
	"github.com/ppmusicbot/ppmusicbot/internal/search"
	"github.com/ppmusicbot/ppmusicbot/pkg/catalogue"
)

// SuggestionPrefix prefixes the custom id of every suggestion menu. The
// suffix is the id of the interaction that produced the suggestions.
const SuggestionPrefix = "suggestion_selector:"

// User-facing replies.
const (
	msgNoTracks       = "The database did not find any tracks."
	msgExpired        = "This suggestion menu has expired. Please try your search again."
	msgSelectionError = "An error occurred while processing your selection."
	msgNeedDJ         = "You need the DJ role to queue music."
	msgQueueEmpty     = "The queue is empty!"
	msgNeedDJQueue    = "You need the DJ role to manage the queue."
)

const (
	// commandTimeout bounds the catalogue work of one interaction. Discord
	// allows 15 minutes for follow-ups after a deferred reply.
	commandTimeout = 30 * time.Second

	// maxQueueLines caps the entries shown by /queue.
	maxQueueLines = 20

	// maxOptionLabel is Discord's limit for select option labels.
	maxOptionLabel = 100
)

// Searcher is the disambiguation engine as used by the music commands.
// *search.Engine satisfies it.
type Searcher interface {
	SearchFiltered(ctx context.Context, query, requestID string, filter search.Filter) search.Outcome
	SearchRandom(ctx context.Context, count int) (search.Outcome, error)
	ResolveSelection(ctx context.Context, requestID string, kind search.Kind, index int) (search.Outcome, error)
}

// URIResolver turns a catalogue track into a playable stream URI.
// catalogue.Client satisfies it.
type URIResolver interface {
	ResolvePlayableURI(track catalogue.Track) (*url.URL, error)
}

// MenuLimits caps the suggestion select menu.
type MenuLimits struct {
	// MaxTracks is the number of track options shown at most.
	MaxTracks int

	// MaxOptions is the total number of options; albums fill the space
	// left after the tracks.
	MaxOptions int
}

// MusicCommands holds the dependencies for /fromdb, /fromdbrandom, the queue
// management commands and the suggestion menu.
type MusicCommands struct {
	engine   Searcher
	queue    *queue.Manager
	resolver URIResolver
	perms    *discord.PermissionChecker
	menu     atomic.Pointer[MenuLimits]
}

// NewMusicCommands creates a MusicCommands. Call [MusicCommands.Register] to
// attach it to a router.
func NewMusicCommands(engine Searcher, q *queue.Manager, resolver URIResolver, perms *discord.PermissionChecker, menu MenuLimits) *MusicCommands {
	mc := &MusicCommands{
		engine:   engine,
		queue:    q,
		resolver: resolver,
		perms:    perms,
	}
	mc.SetMenuLimits(menu)
	return mc
}

// SetMenuLimits replaces the suggestion menu limits. Safe to call while
// interactions are being handled.
func (mc *MusicCommands) SetMenuLimits(menu MenuLimits) {
	mc.menu.Store(&menu)
}

// Register registers the music commands and the suggestion menu handler with
// the router.
func (mc *MusicCommands) Register(router *discord.CommandRouter) {
	router.RegisterCommand(mc.fromDBDefinition(), mc.handleFromDB)
	router.RegisterCommand(mc.fromDBRandomDefinition(), mc.handleFromDBRandom)
	mc.registerQueueCommands(router)
	router.RegisterComponentPrefix(SuggestionPrefix, mc.handleSelection)
}

func (mc *MusicCommands) fromDBDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "fromdb",
		Description: "Plays music from the database only.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "query",
				Description: "Title of the track or album",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "search_type",
				Description: "Restrict the search to tracks or albums",
				Choices: []*discordgo.ApplicationCommandOptionChoice{
					{Name: "Any", Value: string(search.FilterAny)},
					{Name: "Tracks", Value: string(search.FilterTracks)},
					{Name: "Albums", Value: string(search.FilterAlbums)},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionBoolean,
				Name:        "shuffle",
				Description: "Shuffle the tracks before queueing them",
			},
		},
	}
}

func (mc *MusicCommands) fromDBRandomDefinition() *discordgo.ApplicationCommand {
	minAmount := float64(1)
	return &discordgo.ApplicationCommand{
		Name:        "fromdbrandom",
		Description: "Plays random music from the database only.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "amount",
				Description: "Amount of tracks to be queried.",
				Required:    true,
				MinValue:    &minAmount,
				MaxValue:    catalogue.MaxRandomCount,
			},
		},
	}
}

// handleFromDB handles /fromdb.
func (mc *MusicCommands) handleFromDB(s discord.Responder, i *discordgo.InteractionCreate) {
	if !mc.perms.IsDJ(i) {
		discord.RespondEphemeral(s, i, msgNeedDJ)
		return
	}

	opts := optionMap(i)
	query := opts.str("query")
	filter := search.Filter(opts.str("search_type"))
	if !filter.IsValid() {
		filter = search.FilterAny
	}
	shuffle := opts.boolean("shuffle")

	discord.DeferReply(s, i)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	out := mc.engine.SearchFiltered(ctx, query, i.ID, filter)
	switch out.Status {
	case search.StatusMatch:
		tracks := outcomeTracks(out)
		n := mc.enqueue(ctx, i, shuffle, tracks)
		discord.FollowUpEmbed(s, i, queuedEmbed(out, tracks, n))

	case search.StatusAmbiguous:
		embed, menu := suggestionMenu(i.ID, out, *mc.menu.Load())
		discord.FollowUpEmbed(s, i, embed, menu)

	case search.StatusNoMatch:
		if filter != search.FilterAny {
			discord.FollowUp(s, i, fmt.Sprintf("Could not find any matching %s in the database.", filter))
			return
		}
		discord.FollowUp(s, i, msgNoTracks)

	default:
		slog.Warn("discord: fromdb search failed", "query", query, "interaction_id", i.ID, "err", out.Err)
		discord.FollowUp(s, i, msgNoTracks)
	}
}

// handleFromDBRandom handles /fromdbrandom.
func (mc *MusicCommands) handleFromDBRandom(s discord.Responder, i *discordgo.InteractionCreate) {
	if !mc.perms.IsDJ(i) {
		discord.RespondEphemeral(s, i, msgNeedDJ)
		return
	}

	amount := int(optionMap(i).integer("amount"))
	if amount < 1 || amount > catalogue.MaxRandomCount {
		discord.RespondEphemeral(s, i, fmt.Sprintf("The amount must be between 1 and %d.", catalogue.MaxRandomCount))
		return
	}

	discord.DeferReply(s, i)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	out, err := mc.engine.SearchRandom(ctx, amount)
	if err != nil {
		slog.Warn("discord: random search rejected", "amount", amount, "err", err)
		discord.FollowUp(s, i, msgNoTracks)
		return
	}
	if out.Status != search.StatusMatch {
		if out.Err != nil {
			slog.Warn("discord: random search failed", "amount", amount, "err", out.Err)
		}
		discord.FollowUp(s, i, msgNoTracks)
		return
	}

	tracks := outcomeTracks(out)
	n := mc.enqueue(ctx, i, false, tracks)
	discord.FollowUpEmbed(s, i, queuedEmbed(out, tracks, n))
}

// handleSelection handles a choice in a suggestion menu.
func (mc *MusicCommands) handleSelection(s discord.Responder, i *discordgo.InteractionCreate) {
	if !mc.perms.IsDJ(i) {
		discord.RespondEphemeral(s, i, msgNeedDJ)
		return
	}

	data := i.MessageComponentData()
	requestID := strings.TrimPrefix(data.CustomID, SuggestionPrefix)
	if len(data.Values) == 0 {
		discord.RespondEphemeral(s, i, msgSelectionError)
		return
	}
	sel, err := search.ParseSelection(data.Values[0])
	if err != nil {
		slog.Warn("discord: bad suggestion value", "value", data.Values[0], "err", err)
		discord.RespondEphemeral(s, i, msgSelectionError)
		return
	}

	discord.DeferUpdate(s, i)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	out, err := mc.engine.ResolveSelection(ctx, requestID, sel.Kind, sel.Index)
	switch {
	case errors.Is(err, search.ErrExpired):
		discord.FollowUp(s, i, msgExpired)
		discord.ClearComponents(s, i)
		return
	case err != nil:
		slog.Warn("discord: resolve selection failed",
			"request_id", requestID,
			"selection", sel.String(),
			"err", err)
		discord.FollowUp(s, i, msgSelectionError)
		discord.ClearComponents(s, i)
		return
	}

	tracks := outcomeTracks(out)
	n := mc.enqueue(ctx, i, false, tracks)
	discord.EditEmbed(s, i, queuedEmbed(out, tracks, n))
}

// enqueue resolves stream URIs for tracks and appends them to the guild
// queue. Tracks without a playable file are skipped. It returns the new
// queue length.
func (mc *MusicCommands) enqueue(ctx context.Context, i *discordgo.InteractionCreate, shuffle bool, tracks []catalogue.Track) int {
	requester := interactionUserID(i)
	items := make([]queue.Item, 0, len(tracks))
	for _, t := range tracks {
		u, err := mc.resolver.ResolvePlayableURI(t)
		if err != nil {
			slog.Debug("discord: skipping unplayable track", "track_id", t.ID, "err", err)
			continue
		}
		items = append(items, queue.Item{
			Title:           t.Title,
			URI:             u.String(),
			DurationSeconds: t.Duration,
			RequestedBy:     requester,
		})
	}
	return mc.queue.Enqueue(ctx, i.GuildID, shuffle, items...)
}

// outcomeTracks flattens a match into the tracks to queue: the single track,
// every track of the single album, or every sampled track.
func outcomeTracks(out search.Outcome) []catalogue.Track {
	var tracks []catalogue.Track
	for _, t := range out.Tracks {
		tracks = append(tracks, t.Track)
	}
	for _, a := range out.Albums {
		tracks = append(tracks, a.Music...)
	}
	return tracks
}

// interactionUserID extracts the user ID from an interaction, handling
// both guild (Member) and DM (User) contexts.
func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
