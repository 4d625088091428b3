package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/ppmusicbot/ppmusicbot/internal/discord"
	"github.com/ppmusicbot/ppmusicbot/internal/queue"
)

func (mc *MusicCommands) registerQueueCommands(router *discord.CommandRouter) {
	minPos := float64(1)
	position := func(name, desc string) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionInteger,
			Name:        name,
			Description: desc,
			Required:    true,
			MinValue:    &minPos,
		}
	}

	router.RegisterCommand(&discordgo.ApplicationCommand{
		Name:        "queue",
		Description: "Shows the tracks waiting to be played.",
	}, mc.handleQueue)
	router.RegisterCommand(&discordgo.ApplicationCommand{
		Name:        "skip",
		Description: "Skips the track at the head of the queue.",
	}, mc.handleSkip)
	router.RegisterCommand(&discordgo.ApplicationCommand{
		Name:        "stop",
		Description: "Stops playback and clears the queue.",
	}, mc.handleStop)
	router.RegisterCommand(&discordgo.ApplicationCommand{
		Name:        "shuffle",
		Description: "Shuffles the queue.",
	}, mc.handleShuffle)
	router.RegisterCommand(&discordgo.ApplicationCommand{
		Name:        "remove",
		Description: "Removes a track from the queue.",
		Options: []*discordgo.ApplicationCommandOption{
			position("position", "Position of the track in the queue"),
		},
	}, mc.handleRemove)
	router.RegisterCommand(&discordgo.ApplicationCommand{
		Name:        "move",
		Description: "Moves a track to another position in the queue.",
		Options: []*discordgo.ApplicationCommandOption{
			position("from", "Current position of the track"),
			position("to", "New position of the track"),
		},
	}, mc.handleMove)
}

// handleQueue handles /queue.
func (mc *MusicCommands) handleQueue(s discord.Responder, i *discordgo.InteractionCreate) {
	items := mc.queue.List(i.GuildID)
	if len(items) == 0 {
		discord.RespondEphemeral(s, i, msgQueueEmpty)
		return
	}
	discord.RespondEmbed(s, i, queueEmbed(items))
}

// handleSkip handles /skip by dropping the head of the queue.
func (mc *MusicCommands) handleSkip(s discord.Responder, i *discordgo.InteractionCreate) {
	if !mc.perms.IsDJ(i) {
		discord.RespondEphemeral(s, i, msgNeedDJQueue)
		return
	}
	it, err := mc.queue.Next(context.Background(), i.GuildID)
	if errors.Is(err, queue.ErrEmpty) {
		discord.RespondEphemeral(s, i, msgQueueEmpty)
		return
	}
	if err != nil {
		discord.RespondError(s, i, err)
		return
	}
	discord.Respond(s, i, fmt.Sprintf("Skipped %s.", it.Title))
}

// handleStop handles /stop.
func (mc *MusicCommands) handleStop(s discord.Responder, i *discordgo.InteractionCreate) {
	if !mc.perms.IsDJ(i) {
		discord.RespondEphemeral(s, i, msgNeedDJQueue)
		return
	}
	n := mc.queue.Clear(context.Background(), i.GuildID)
	slog.Info("discord: queue cleared", "guild_id", i.GuildID, "tracks", n)
	discord.Respond(s, i, fmt.Sprintf("Stopped and removed %d tracks from the queue.", n))
}

// handleShuffle handles /shuffle.
func (mc *MusicCommands) handleShuffle(s discord.Responder, i *discordgo.InteractionCreate) {
	if !mc.perms.IsDJ(i) {
		discord.RespondEphemeral(s, i, msgNeedDJQueue)
		return
	}
	if mc.queue.Shuffle(i.GuildID) == 0 {
		discord.RespondEphemeral(s, i, msgQueueEmpty)
		return
	}
	discord.Respond(s, i, "The queue has been shuffled.")
}

// handleRemove handles /remove.
func (mc *MusicCommands) handleRemove(s discord.Responder, i *discordgo.InteractionCreate) {
	if !mc.perms.IsDJ(i) {
		discord.RespondEphemeral(s, i, msgNeedDJQueue)
		return
	}
	pos := int(optionMap(i).integer("position"))
	it, err := mc.queue.Remove(context.Background(), i.GuildID, pos)
	if err != nil {
		mc.respondPosition(s, i, err)
		return
	}
	discord.Respond(s, i, fmt.Sprintf("Removed %s from the queue.", it.Title))
}

// handleMove handles /move.
func (mc *MusicCommands) handleMove(s discord.Responder, i *discordgo.InteractionCreate) {
	if !mc.perms.IsDJ(i) {
		discord.RespondEphemeral(s, i, msgNeedDJQueue)
		return
	}
	opts := optionMap(i)
	from, to := int(opts.integer("from")), int(opts.integer("to"))
	it, err := mc.queue.Move(i.GuildID, from, to)
	if err != nil {
		mc.respondPosition(s, i, err)
		return
	}
	discord.Respond(s, i, fmt.Sprintf("Moved %s to position %d.", it.Title, to))
}

func (mc *MusicCommands) respondPosition(s discord.Responder, i *discordgo.InteractionCreate, err error) {
	if !errors.Is(err, queue.ErrPosition) {
		discord.RespondError(s, i, err)
		return
	}
	n := mc.queue.Len(i.GuildID)
	if n == 0 {
		discord.RespondEphemeral(s, i, msgQueueEmpty)
		return
	}
	discord.RespondEphemeral(s, i, fmt.Sprintf("The position must be between 1 and %d.", n))
}
