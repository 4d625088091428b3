package discord

import (
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/ppmusicbot/ppmusicbot/internal/telemetry"
)

// VoiceEventFrom converts a gateway voice state update into a telemetry
// event. It reports false for updates that do not change the user's
// channel, such as mute and deafen toggles.
func VoiceEventFrom(v *discordgo.VoiceStateUpdate, now time.Time) (telemetry.VoiceEvent, bool) {
	if v == nil || v.VoiceState == nil {
		return telemetry.VoiceEvent{}, false
	}
	var old string
	if v.BeforeUpdate != nil {
		old = v.BeforeUpdate.ChannelID
	}
	if old == v.ChannelID {
		return telemetry.VoiceEvent{}, false
	}
	return telemetry.VoiceEvent{
		UserID:     v.UserID,
		OldChannel: old,
		NewChannel: v.ChannelID,
		GuildID:    v.GuildID,
		Timestamp:  now.UTC(),
	}, true
}
