package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

const defaultPollInterval = 5 * time.Second

// Watcher polls a config file and hands every new valid revision to a
// callback, usually the application's ApplyConfig. A revision that fails to
// parse or validate is logged once and skipped; [Watcher.Current] keeps
// returning the last accepted one.
type Watcher struct {
	path  string
	every time.Duration
	apply func(prev, next *Config)

	mu       sync.Mutex
	accepted revision
	rejected [sha256.Size]byte

	stop     chan struct{}
	stopOnce sync.Once
}

// revision is one accepted version of the watched file.
type revision struct {
	cfg   *Config
	sum   [sha256.Size]byte
	mtime time.Time
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets how often the file is polled. Defaults to 5s.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.every = d
		}
	}
}

// NewWatcher reads path once and starts polling it in the background. The
// initial read must succeed. apply may be nil.
func NewWatcher(path string, apply func(prev, next *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:  path,
		every: defaultPollInterval,
		apply: apply,
		stop:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	rev, err := readRevision(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.accepted = rev

	go w.loop()
	return w, nil
}

// Current returns the last accepted config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.accepted.cfg
}

// Stop ends polling. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

// Run blocks until ctx is done or [Watcher.Stop] is called, so the watcher
// can share an errgroup with the server and the bot.
func (w *Watcher) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		w.Stop()
	case <-w.stop:
	}
	return nil
}

func (w *Watcher) loop() {
	t := time.NewTicker(w.every)
	defer t.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-t.C:
			w.reload()
		}
	}
}

// reload re-reads the file when its mtime moved past the accepted revision
// and applies it when the content differs too.
func (w *Watcher) reload() {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config: cannot stat watched file", "path", w.path, "err", err)
		return
	}
	w.mu.Lock()
	seen := w.accepted.mtime
	w.mu.Unlock()
	if info.ModTime().Equal(seen) {
		return
	}

	data, err := os.ReadFile(w.path)
	if err != nil {
		slog.Warn("config: cannot read watched file", "path", w.path, "err", err)
		return
	}
	next, err := parseRevision(data, info.ModTime())

	w.mu.Lock()
	if err != nil {
		sum := sha256.Sum256(data)
		repeat := sum == w.rejected
		w.rejected = sum
		w.mu.Unlock()
		if !repeat {
			slog.Warn("config: edit rejected, keeping previous config", "path", w.path, "err", err)
		}
		return
	}
	prev := w.accepted
	if next.sum == prev.sum {
		// Touched without a content change.
		w.accepted.mtime = next.mtime
		w.mu.Unlock()
		return
	}
	w.accepted = next
	w.mu.Unlock()

	slog.Info("config: reloaded", "path", w.path)
	if w.apply != nil {
		w.apply(prev.cfg, next.cfg)
	}
}

// readRevision stats path before reading it, so a write racing the read
// shows up as a newer mtime on the next poll.
func readRevision(path string) (revision, error) {
	info, err := os.Stat(path)
	if err != nil {
		return revision{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return revision{}, err
	}
	return parseRevision(data, info.ModTime())
}

func parseRevision(data []byte, mtime time.Time) (revision, error) {
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return revision{}, err
	}
	return revision{cfg: cfg, sum: sha256.Sum256(data), mtime: mtime}, nil
}
