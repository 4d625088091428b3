package discord

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/ppmusicbot/ppmusicbot/internal/discord/mock"
	"github.com/ppmusicbot/ppmusicbot/internal/telemetry"
)

func TestPermissionChecker_IsDJ(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		djRoleID string
		inter    *discordgo.InteractionCreate
		want     bool
	}{
		{
			name:     "user with DJ role",
			djRoleID: "role-123",
			inter: &discordgo.InteractionCreate{
				Interaction: &discordgo.Interaction{
					Member: &discordgo.Member{
						Roles: []string{"role-456", "role-123", "role-789"},
					},
				},
			},
			want: true,
		},
		{
			name:     "user without DJ role",
			djRoleID: "role-123",
			inter: &discordgo.InteractionCreate{
				Interaction: &discordgo.Interaction{
					Member: &discordgo.Member{
						Roles: []string{"role-456", "role-789"},
					},
				},
			},
			want: false,
		},
		{
			name:     "empty DJRoleID allows all",
			djRoleID: "",
			inter: &discordgo.InteractionCreate{
				Interaction: &discordgo.Interaction{
					Member: &discordgo.Member{
						Roles: []string{"role-456"},
					},
				},
			},
			want: true,
		},
		{
			name:     "nil Member returns false",
			djRoleID: "role-123",
			inter: &discordgo.InteractionCreate{
				Interaction: &discordgo.Interaction{
					Member: nil,
				},
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pc := NewPermissionChecker(tt.djRoleID)
			if got := pc.IsDJ(tt.inter); got != tt.want {
				t.Errorf("IsDJ() = %v, want %v", got, tt.want)
			}
		})
	}
}

func commandInteraction(name string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type: discordgo.InteractionApplicationCommand,
			Data: discordgo.ApplicationCommandInteractionData{Name: name},
		},
	}
}

func componentInteraction(customID string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type: discordgo.InteractionMessageComponent,
			Data: discordgo.MessageComponentInteractionData{CustomID: customID},
		},
	}
}

func TestCommandRouter_ApplicationCommands(t *testing.T) {
	t.Parallel()

	r := NewCommandRouter()
	r.RegisterCommand(&discordgo.ApplicationCommand{Name: "fromdb"}, func(Responder, *discordgo.InteractionCreate) {})
	r.RegisterCommand(&discordgo.ApplicationCommand{Name: "queue"}, func(Responder, *discordgo.InteractionCreate) {})
	r.RegisterCommand(&discordgo.ApplicationCommand{Name: "queue"}, func(Responder, *discordgo.InteractionCreate) {})

	cmds := r.ApplicationCommands()
	if len(cmds) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(cmds))
	}
}

func TestCommandRouter_DispatchesCommand(t *testing.T) {
	t.Parallel()

	r := NewCommandRouter()
	var got string
	r.RegisterCommand(&discordgo.ApplicationCommand{Name: "fromdb"}, func(_ Responder, i *discordgo.InteractionCreate) {
		got = i.ApplicationCommandData().Name
	})

	resp := &mock.InteractionResponder{}
	r.Handle(resp, commandInteraction("fromdb"))

	if got != "fromdb" {
		t.Errorf("handler saw %q, want fromdb", got)
	}
	if len(resp.Responses) != 0 {
		t.Errorf("router should not respond itself, got %d responses", len(resp.Responses))
	}
}

func TestCommandRouter_UnknownCommand(t *testing.T) {
	t.Parallel()

	r := NewCommandRouter()
	resp := &mock.InteractionResponder{}
	r.Handle(resp, commandInteraction("nope"))

	last := resp.LastResponse()
	if last == nil {
		t.Fatal("expected an ephemeral response")
	}
	if last.Data.Content != "Unknown command." {
		t.Errorf("content = %q", last.Data.Content)
	}
	if last.Data.Flags&discordgo.MessageFlagsEphemeral == 0 {
		t.Error("response should be ephemeral")
	}
}

func TestCommandRouter_ComponentPrefix(t *testing.T) {
	t.Parallel()

	r := NewCommandRouter()
	var exact, prefixed int
	r.RegisterComponent("queue_refresh", func(Responder, *discordgo.InteractionCreate) { exact++ })
	r.RegisterComponentPrefix("suggestion_selector:", func(Responder, *discordgo.InteractionCreate) { prefixed++ })

	resp := &mock.InteractionResponder{}
	r.Handle(resp, componentInteraction("queue_refresh"))
	r.Handle(resp, componentInteraction("suggestion_selector:1234"))
	r.Handle(resp, componentInteraction("other"))

	if exact != 1 || prefixed != 1 {
		t.Errorf("exact=%d prefixed=%d, want 1/1", exact, prefixed)
	}
	if last := resp.LastResponse(); last == nil || last.Data.Content != "Unknown component." {
		t.Errorf("unknown component response = %+v", last)
	}
}

func TestVoiceEventFrom(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 1, 13, 0, 0, 0, time.FixedZone("CET", 3600))
	state := func(channel string) *discordgo.VoiceState {
		return &discordgo.VoiceState{UserID: "u1", GuildID: "g1", ChannelID: channel}
	}

	tests := []struct {
		name    string
		update  *discordgo.VoiceStateUpdate
		wantOK  bool
		wantOld string
		wantNew string
	}{
		{"nil update", nil, false, "", ""},
		{"join", &discordgo.VoiceStateUpdate{VoiceState: state("c1")}, true, "", "c1"},
		{"leave", &discordgo.VoiceStateUpdate{VoiceState: state(""), BeforeUpdate: state("c1")}, true, "c1", ""},
		{"move", &discordgo.VoiceStateUpdate{VoiceState: state("c2"), BeforeUpdate: state("c1")}, true, "c1", "c2"},
		{"mute toggle", &discordgo.VoiceStateUpdate{VoiceState: state("c1"), BeforeUpdate: state("c1")}, false, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ev, ok := VoiceEventFrom(tt.update, now)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if ev.OldChannel != tt.wantOld || ev.NewChannel != tt.wantNew {
				t.Errorf("channels = %q -> %q, want %q -> %q", ev.OldChannel, ev.NewChannel, tt.wantOld, tt.wantNew)
			}
			if ev.UserID != "u1" || ev.GuildID != "g1" {
				t.Errorf("ids = %q/%q", ev.UserID, ev.GuildID)
			}
			if !ev.Timestamp.Equal(now) || ev.Timestamp.Location() != time.UTC {
				t.Errorf("timestamp = %v, want %v in UTC", ev.Timestamp, now)
			}
		})
	}
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []telemetry.VoiceEvent
	err    error
}

func (f *fakeRecorder) Record(_ context.Context, ev telemetry.VoiceEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.err
}

func TestBot_OnVoiceStateUpdate(t *testing.T) {
	t.Parallel()

	rec := &fakeRecorder{err: errors.New("buffer full")}
	b := &Bot{recorder: rec}

	b.onVoiceStateUpdate(&discordgo.VoiceStateUpdate{
		VoiceState: &discordgo.VoiceState{UserID: "u1", GuildID: "g1", ChannelID: "c1"},
	})
	b.onVoiceStateUpdate(&discordgo.VoiceStateUpdate{
		VoiceState:   &discordgo.VoiceState{UserID: "u1", GuildID: "g1", ChannelID: "c1", SelfMute: true},
		BeforeUpdate: &discordgo.VoiceState{UserID: "u1", GuildID: "g1", ChannelID: "c1"},
	})

	if len(rec.events) != 1 {
		t.Fatalf("recorded %d events, want 1", len(rec.events))
	}
	if rec.events[0].NewChannel != "c1" {
		t.Errorf("new channel = %q, want c1", rec.events[0].NewChannel)
	}

	// No recorder configured: updates are dropped.
	(&Bot{}).onVoiceStateUpdate(&discordgo.VoiceStateUpdate{
		VoiceState: &discordgo.VoiceState{UserID: "u1", ChannelID: "c1"},
	})
}

func TestNewSession_DispatchesAsync(t *testing.T) {
	t.Parallel()

	s, err := newSession("token")
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}
	if s.SyncEvents {
		t.Error("SyncEvents = true, want handlers dispatched on their own goroutine")
	}
	want := discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
	if s.Identify.Intents != want {
		t.Errorf("intents = %v, want %v", s.Identify.Intents, want)
	}
}

type deadlineRecorder struct {
	deadline time.Time
	ok       bool
}

func (d *deadlineRecorder) Record(ctx context.Context, _ telemetry.VoiceEvent) error {
	d.deadline, d.ok = ctx.Deadline()
	return nil
}

func TestBot_OnVoiceStateUpdateBoundsRecord(t *testing.T) {
	t.Parallel()

	rec := &deadlineRecorder{}
	b := &Bot{recorder: rec}
	start := time.Now()
	b.onVoiceStateUpdate(&discordgo.VoiceStateUpdate{
		VoiceState: &discordgo.VoiceState{UserID: "u1", GuildID: "g1", ChannelID: "c1"},
	})

	if !rec.ok {
		t.Fatal("Record called without a deadline")
	}
	if got := rec.deadline.Sub(start); got > recordTimeout || got < 31*time.Second {
		t.Errorf("record deadline = %v after start, want within (31s, %v]", got, recordTimeout)
	}
}
