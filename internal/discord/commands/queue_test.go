package commands

import (
	"context"
	"slices"
	"testing"

	"github.com/ppmusicbot/ppmusicbot/internal/queue"
)

func (f *fixture) fill(titles ...string) {
	items := make([]queue.Item, len(titles))
	for i, t := range titles {
		items[i] = queue.Item{Title: t, URI: "http://catalogue.test/" + t}
	}
	f.queue.Enqueue(context.Background(), testGuild, false, items...)
}

func (f *fixture) titles() []string {
	var out []string
	for _, it := range f.queue.List(testGuild) {
		out = append(out, it.Title)
	}
	return out
}

func (f *fixture) lastContent(t *testing.T) string {
	t.Helper()
	resp := f.resp.LastResponse()
	if resp == nil || resp.Data == nil {
		t.Fatal("no response")
	}
	return resp.Data.Content
}

func TestSkip(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "")

	f.router.Handle(f.resp, slashCommand("req-1", "skip"))
	if got := f.lastContent(t); got != msgQueueEmpty {
		t.Errorf("empty skip = %q", got)
	}

	f.fill("a", "b")
	f.router.Handle(f.resp, slashCommand("req-2", "skip"))
	if got := f.lastContent(t); got != "Skipped a." {
		t.Errorf("skip = %q", got)
	}
	if got := f.titles(); !slices.Equal(got, []string{"b"}) {
		t.Errorf("queue = %v", got)
	}
}

func TestStop(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "")
	f.fill("a", "b", "c")

	f.router.Handle(f.resp, slashCommand("req-1", "stop"))
	if got := f.lastContent(t); got != "Stopped and removed 3 tracks from the queue." {
		t.Errorf("stop = %q", got)
	}
	if n := f.queue.Len(testGuild); n != 0 {
		t.Errorf("queue len = %d, want 0", n)
	}
}

func TestShuffle(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "")

	f.router.Handle(f.resp, slashCommand("req-1", "shuffle"))
	if got := f.lastContent(t); got != msgQueueEmpty {
		t.Errorf("empty shuffle = %q", got)
	}

	f.fill("a", "b", "c", "d")
	f.router.Handle(f.resp, slashCommand("req-2", "shuffle"))
	if got := f.lastContent(t); got != "The queue has been shuffled." {
		t.Errorf("shuffle = %q", got)
	}
	got := f.titles()
	slices.Sort(got)
	if !slices.Equal(got, []string{"a", "b", "c", "d"}) {
		t.Errorf("shuffle changed the queue contents: %v", got)
	}
}

func TestRemove(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "")
	f.fill("a", "b", "c")

	f.router.Handle(f.resp, slashCommand("req-1", "remove", intOpt("position", 2)))
	if got := f.lastContent(t); got != "Removed b from the queue." {
		t.Errorf("remove = %q", got)
	}
	if got := f.titles(); !slices.Equal(got, []string{"a", "c"}) {
		t.Errorf("queue = %v", got)
	}

	f.router.Handle(f.resp, slashCommand("req-2", "remove", intOpt("position", 9)))
	if got := f.lastContent(t); got != "The position must be between 1 and 2." {
		t.Errorf("out of range remove = %q", got)
	}
}

func TestMove(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "")
	f.fill("a", "b", "c")

	f.router.Handle(f.resp, slashCommand("req-1", "move", intOpt("from", 3), intOpt("to", 1)))
	if got := f.lastContent(t); got != "Moved c to position 1." {
		t.Errorf("move = %q", got)
	}
	if got := f.titles(); !slices.Equal(got, []string{"c", "a", "b"}) {
		t.Errorf("queue = %v", got)
	}

	f.router.Handle(f.resp, slashCommand("req-2", "move", intOpt("from", 1), intOpt("to", 4)))
	if got := f.lastContent(t); got != "The position must be between 1 and 3." {
		t.Errorf("out of range move = %q", got)
	}

	empty := newFixture(t, "")
	empty.router.Handle(empty.resp, slashCommand("req-3", "move", intOpt("from", 1), intOpt("to", 1)))
	if got := empty.lastContent(t); got != msgQueueEmpty {
		t.Errorf("move on empty queue = %q", got)
	}
}

func TestQueueCommands_RequireDJRole(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"skip", "stop", "shuffle", "remove", "move"} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, "role-other")
			f.fill("a", "b")

			f.router.Handle(f.resp, slashCommand("req-1", name, intOpt("position", 1), intOpt("from", 1), intOpt("to", 2)))
			if got := f.lastContent(t); got != msgNeedDJQueue {
				t.Errorf("%s without role = %q", name, got)
			}
			if got := f.titles(); !slices.Equal(got, []string{"a", "b"}) {
				t.Errorf("%s changed the queue without the role: %v", name, got)
			}
		})
	}
}
