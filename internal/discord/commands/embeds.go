package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/ppmusicbot/ppmusicbot/internal/queue"
	"github.com/ppmusicbot/ppmusicbot/internal/search"
	"github.com/ppmusicbot/ppmusicbot/pkg/catalogue"
)

const (
	colorBlurple = 0x5865F2
	colorAmber   = 0xFEE75C
)

// suggestionMenu builds the disambiguation embed and the select menu that
// offers the candidates of an ambiguous outcome. Options carry
// [search.Selection] values so they map back onto the cached outcome.
func suggestionMenu(requestID string, out search.Outcome, limits MenuLimits) (*discordgo.MessageEmbed, discordgo.MessageComponent) {
	var lines []string
	var options []discordgo.SelectMenuOption

	if len(out.Tracks) > 0 {
		lines = append(lines, "**Tracks:**")
		for idx, t := range out.Tracks {
			lines = append(lines, fmt.Sprintf("%s - Score: %s", t.Title, formatScore(t.Score)))
			if idx < limits.MaxTracks && len(options) < limits.MaxOptions {
				options = append(options, discordgo.SelectMenuOption{
					Label: label("Track: " + t.Title),
					Value: search.Selection{Kind: search.KindTrack, Index: idx}.String(),
				})
			}
		}
	}
	if len(out.Albums) > 0 {
		lines = append(lines, "**Albums:**")
		for idx, a := range out.Albums {
			lines = append(lines, fmt.Sprintf("%s - Score: %s", a.Name, formatScore(a.Score)))
			if len(options) < limits.MaxOptions {
				options = append(options, discordgo.SelectMenuOption{
					Label: label("Album: " + a.Name),
					Value: search.Selection{Kind: search.KindAlbum, Index: idx}.String(),
				})
			}
		}
	}

	embed := &discordgo.MessageEmbed{
		Title:       "Oh oh! We are unsure about what you want...",
		Description: "Maybe you meant:\n" + truncateDescription(strings.Join(lines, "\n")),
		Color:       colorAmber,
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Try using quotes to get more exact results for your query.",
		},
	}

	one := 1
	menu := discordgo.ActionsRow{
		Components: []discordgo.MessageComponent{
			discordgo.SelectMenu{
				CustomID:    SuggestionPrefix + requestID,
				Placeholder: "Select an option",
				MinValues:   &one,
				MaxValues:   1,
				Options:     options,
			},
		},
	}
	return embed, menu
}

// queuedEmbed confirms what was added to the queue. queueLen is the length of
// the guild queue after enqueueing.
func queuedEmbed(out search.Outcome, tracks []catalogue.Track, queueLen int) *discordgo.MessageEmbed {
	title := "Added to the queue"
	switch {
	case len(out.Albums) == 1:
		title = "Added album: " + out.Albums[0].Name
	case len(out.Tracks) == 1:
		title = "Added track: " + out.Tracks[0].Title
	case len(out.Tracks) > 1:
		title = fmt.Sprintf("Added %d random tracks", len(out.Tracks))
	}

	var total int
	lines := make([]string, 0, len(tracks))
	for _, t := range tracks {
		total += t.Duration
		lines = append(lines, fmt.Sprintf("%s (%s)", t.Title, formatDuration(t.Duration)))
	}

	return &discordgo.MessageEmbed{
		Title:       title,
		Description: truncateDescription(strings.Join(lines, "\n")),
		Color:       colorBlurple,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Tracks", Value: fmt.Sprintf("%d", len(tracks)), Inline: true},
			{Name: "Duration", Value: formatDuration(total), Inline: true},
			{Name: "Queue length", Value: fmt.Sprintf("%d", queueLen), Inline: true},
		},
	}
}

// queueEmbed lists the head of a guild queue.
func queueEmbed(items []queue.Item) *discordgo.MessageEmbed {
	lines := make([]string, 0, min(len(items), maxQueueLines)+1)
	for idx, it := range items {
		if idx == maxQueueLines {
			lines = append(lines, fmt.Sprintf("...and %d more", len(items)-maxQueueLines))
			break
		}
		lines = append(lines, fmt.Sprintf("%d. %s (%s)", idx+1, it.Title, formatDuration(it.DurationSeconds)))
	}
	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Queue (%d)", len(items)),
		Description: truncateDescription(strings.Join(lines, "\n")),
		Color:       colorBlurple,
	}
}

func formatScore(score float64) string {
	return fmt.Sprintf("%g", score)
}

// formatDuration renders seconds as m:ss.
func formatDuration(seconds int) string {
	d := time.Duration(seconds) * time.Second
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), seconds%60)
}

// label truncates s to Discord's select option label limit.
func label(s string) string {
	r := []rune(s)
	if len(r) <= maxOptionLabel {
		return s
	}
	return string(r[:maxOptionLabel-1]) + "…"
}

// truncateDescription keeps embed descriptions within Discord's 4096
// character limit.
func truncateDescription(s string) string {
	const maxDescription = 4096
	r := []rune(s)
	if len(r) <= maxDescription {
		return s
	}
	return string(r[:maxDescription-1]) + "…"
}
