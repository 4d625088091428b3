// Package queue keeps a per-guild FIFO of tracks waiting to be played. It is
// the hand-off point between the search commands and the audio player.
package queue

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/ppmusicbot/ppmusicbot/internal/observe"
)

var (
	// ErrEmpty is returned by [Manager.Next] when the guild has nothing queued.
	ErrEmpty = errors.New("queue: no tracks in queue")

	// ErrPosition is returned when a 1-based queue position is outside the
	// guild's queue.
	ErrPosition = errors.New("queue: position out of range")
)

// Item is one playable entry.
type Item struct {
	Title           string
	URI             string
	DurationSeconds int

	// RequestedBy is the Discord user ID that queued the item.
	RequestedBy string
}

// Manager holds one queue per guild. It is safe for concurrent use.
type Manager struct {
	metrics *observe.Metrics
	shuffle func(n int, swap func(i, j int))

	mu     sync.Mutex
	queues map[string][]Item
}

// NewManager creates an empty Manager. m may be nil.
func NewManager(m *observe.Metrics) *Manager {
	return &Manager{
		metrics: m,
		shuffle: rand.Shuffle,
		queues:  make(map[string][]Item),
	}
}

// Enqueue appends items to the guild's queue, in random order when shuffle
// is set, and returns the new queue length.
func (m *Manager) Enqueue(ctx context.Context, guildID string, shuffle bool, items ...Item) int {
	items = slices.Clone(items)
	if shuffle {
		m.shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })
	}

	m.mu.Lock()
	q := append(m.queues[guildID], items...)
	m.queues[guildID] = q
	n := len(q)
	m.mu.Unlock()

	m.record(ctx, len(items))
	return n
}

// Next removes and returns the head of the guild's queue.
func (m *Manager) Next(ctx context.Context, guildID string) (Item, error) {
	m.mu.Lock()
	q := m.queues[guildID]
	if len(q) == 0 {
		m.mu.Unlock()
		return Item{}, ErrEmpty
	}
	head := q[0]
	if len(q) == 1 {
		delete(m.queues, guildID)
	} else {
		m.queues[guildID] = q[1:]
	}
	m.mu.Unlock()

	m.record(ctx, -1)
	return head, nil
}

// List returns a copy of the guild's queue in play order.
func (m *Manager) List(guildID string) []Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.queues[guildID])
}

// Len returns the length of the guild's queue.
func (m *Manager) Len(guildID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues[guildID])
}

// Clear drops the guild's queue and returns how many items it held.
func (m *Manager) Clear(ctx context.Context, guildID string) int {
	m.mu.Lock()
	n := len(m.queues[guildID])
	delete(m.queues, guildID)
	m.mu.Unlock()

	m.record(ctx, -n)
	return n
}

// Shuffle reorders the guild's queue in place and returns its length.
func (m *Manager) Shuffle(guildID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queues[guildID]
	m.shuffle(len(q), func(i, j int) { q[i], q[j] = q[j], q[i] })
	return len(q)
}

// Remove deletes the item at the 1-based position pos and returns it.
func (m *Manager) Remove(ctx context.Context, guildID string, pos int) (Item, error) {
	m.mu.Lock()
	q := m.queues[guildID]
	if pos < 1 || pos > len(q) {
		m.mu.Unlock()
		return Item{}, fmt.Errorf("queue: remove %d of %d: %w", pos, len(q), ErrPosition)
	}
	it := q[pos-1]
	q = slices.Delete(q, pos-1, pos)
	if len(q) == 0 {
		delete(m.queues, guildID)
	} else {
		m.queues[guildID] = q
	}
	m.mu.Unlock()

	m.record(ctx, -1)
	return it, nil
}

// Move relocates the item at the 1-based position from to position to,
// shifting the items in between, and returns the moved item.
func (m *Manager) Move(guildID string, from, to int) (Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queues[guildID]
	if from < 1 || from > len(q) || to < 1 || to > len(q) {
		return Item{}, fmt.Errorf("queue: move %d to %d of %d: %w", from, to, len(q), ErrPosition)
	}
	it := q[from-1]
	q = slices.Delete(q, from-1, from)
	m.queues[guildID] = slices.Insert(q, to-1, it)
	return it, nil
}

func (m *Manager) record(ctx context.Context, delta int) {
	if m.metrics != nil && delta != 0 {
		m.metrics.QueuedTracks.Add(ctx, int64(delta))
	}
}
