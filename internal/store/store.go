// Package store owns the overlay/base pair. The base dataset is fetched
// once and never mutated; every write funnels through a copy-on-write
// overlay mutator; the effective document is a disposable recomputation of
// merge(base, overlay). There are no ambient singletons: a Store is an
// explicit object with injected storage and fetch providers, so tests can
// run any number of independent instances.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"freilog/api/internal/basedata"
	"freilog/api/internal/catalog"
	"freilog/api/internal/daylog"
	"freilog/api/internal/document"
	"freilog/api/internal/normalize"
	"freilog/api/internal/storage"
)

// OverlayKey is the storage key the overlay document persists under.
const OverlayKey = "freilog.overlay"

// Status is the store lifecycle state.
type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusLoading       Status = "loading"
	StatusReady         Status = "ready"
)

// ErrNotReady is returned by reads and writes before Init succeeds.
var ErrNotReady = errors.New("store: not ready")

// Historian receives every persisted overlay revision.
type Historian interface {
	Record(ctx context.Context, payload []byte, note string) error
}

// State is the read projection handed to callers.
type State struct {
	Effective    document.Document
	SelectedDate string
	ExportMode   string
}

// Store reconciles the base dataset with the local overlay.
type Store struct {
	mu        sync.Mutex
	status    Status
	provider  storage.Provider
	fetcher   basedata.Fetcher
	historian Historian
	clock     func() time.Time

	base      document.Document
	overlay   *document.Overlay
	effective document.Document

	nextSub     int
	subscribers map[int]func()
}

// Option configures a Store.
type Option func(*Store)

// WithHistorian attaches an overlay snapshot recorder.
func WithHistorian(h Historian) Option {
	return func(s *Store) { s.historian = h }
}

// WithClock overrides the time source; tests use it.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// New creates an uninitialized store.
func New(provider storage.Provider, fetcher basedata.Fetcher, opts ...Option) *Store {
	s := &Store{
		status:      StatusUninitialized,
		provider:    provider,
		fetcher:     fetcher,
		clock:       time.Now,
		subscribers: map[int]func(){},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Status returns the lifecycle state.
func (s *Store) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Init fetches the base dataset, loads the overlay and computes the first
// effective document. A base fetch or parse failure is fatal: the store
// stays out of Ready and the error propagates. A malformed stored overlay
// is logged and treated as absent.
func (s *Store) Init(ctx context.Context) error {
	subs, err := s.initLocked(ctx)
	if err != nil {
		return err
	}
	for _, fn := range subs {
		fn()
	}
	return nil
}

func (s *Store) initLocked(ctx context.Context) ([]func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusReady {
		return nil, nil
	}
	s.status = StatusLoading

	raw, err := s.fetcher.Fetch(ctx)
	if err != nil {
		s.status = StatusUninitialized
		return nil, fmt.Errorf("fetch base dataset: %w", err)
	}
	now := s.clock()
	base, err := document.Parse(raw, now)
	if err != nil {
		s.status = StatusUninitialized
		return nil, fmt.Errorf("parse base dataset: %w", err)
	}
	s.base = base
	s.overlay = s.loadOverlay(ctx)
	s.effective = document.BuildEffective(s.base, s.overlay, now)
	s.status = StatusReady
	return s.subscribersLocked(), nil
}

// loadOverlay tolerates both absence and corruption: anything that does not
// parse is treated as no overlay.
func (s *Store) loadOverlay(ctx context.Context) *document.Overlay {
	value, err := s.provider.Get(ctx, OverlayKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		log.Printf("store: reading overlay failed, starting without it: %v", err)
		return nil
	}
	overlay, err := document.ParseOverlay([]byte(value))
	if err != nil {
		log.Printf("store: stored overlay is malformed, starting without it: %v", err)
		return nil
	}
	return overlay
}

// State projects the current effective document plus the UI scalars,
// overlay-first, then effective settings, then hardcoded defaults.
func (s *Store) State() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusReady {
		return State{}, ErrNotReady
	}
	state := State{
		Effective:    s.effective,
		SelectedDate: s.clock().UTC().Format("2006-01-02"),
		ExportMode:   s.effective.Settings.ExportMode,
	}
	if s.overlay != nil {
		if s.overlay.UI.SelectedDate != "" {
			state.SelectedDate = s.overlay.UI.SelectedDate
		}
		if s.overlay.UI.ExportMode != "" {
			state.ExportMode = s.overlay.UI.ExportMode
		}
	}
	if state.ExportMode == "" {
		state.ExportMode = "day"
	}
	return state, nil
}

// Effective returns the current effective document.
func (s *Store) Effective() (document.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusReady {
		return document.Document{}, ErrNotReady
	}
	return s.effective, nil
}

// Base returns the immutable base document.
func (s *Store) Base() (document.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusReady {
		return document.Document{}, ErrNotReady
	}
	return s.base, nil
}

// Ping reports whether the storage provider is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.provider.Ping(ctx)
}

// Overlay returns a deep copy of the current overlay (possibly empty).
func (s *Store) Overlay() *document.Overlay {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlay.Clone()
}

// UpdateOverlay is the single write entry point. The mutator runs against a
// clone of the current overlay (or a fresh one) and receives the current
// effective document, so read-then-write commands compute their next value
// inside the critical section instead of racing between a separate read and
// the write. A mutator error aborts the update without persisting anything.
// Afterwards the overlay is defensively re-normalized, persisted, the
// effective document recomputed and subscribers notified. Subscribers are
// called after the lock is released; they may read the store freely.
func (s *Store) UpdateOverlay(ctx context.Context, mutate func(o *document.Overlay, eff document.Document) error) error {
	subs, err := s.applyUpdate(ctx, mutate)
	if err != nil {
		return err
	}
	for _, fn := range subs {
		fn()
	}
	return nil
}

func (s *Store) applyUpdate(ctx context.Context, mutate func(o *document.Overlay, eff document.Document) error) ([]func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusReady {
		return nil, ErrNotReady
	}

	now := s.clock()
	next := s.overlay.Clone()
	if next.Records.EntriesByDate == nil {
		next.Records.EntriesByDate = map[string]daylog.Entry{}
	}
	if err := mutate(next, s.effective); err != nil {
		return nil, err
	}

	effective := document.BuildEffective(s.base, next, now)
	s.normalizeOverlay(next, effective, now)
	next.Meta.SavedAt = now.UTC().Format(time.RFC3339)

	raw, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("marshal overlay: %w", err)
	}
	if err := s.provider.Set(ctx, OverlayKey, string(raw)); err != nil {
		return nil, fmt.Errorf("persist overlay: %w", err)
	}

	s.overlay = next
	s.effective = document.BuildEffective(s.base, next, now)

	if s.historian != nil {
		if err := s.historian.Record(ctx, raw, "overlay saved "+next.Meta.SavedAt); err != nil {
			log.Printf("store: overlay snapshot failed: %v", err)
		}
	}
	return s.subscribersLocked(), nil
}

// normalizeOverlay re-validates the overlay structure on every write. Day
// entries are normalized against the effective context so stale module and
// roster references heal immediately instead of lingering in storage.
func (s *Store) normalizeOverlay(o *document.Overlay, effective document.Document, now time.Time) {
	o.PresetOverrides.AngeboteAdded = catalog.NormalizeEntries(o.PresetOverrides.AngeboteAdded, now)
	o.PresetOverrides.ObservationsAdded = catalog.NormalizeEntries(o.PresetOverrides.ObservationsAdded, now)
	if o.PresetOverrides.Angebote != nil {
		entries := catalog.NormalizeEntries(*o.PresetOverrides.Angebote, now)
		o.PresetOverrides.Angebote = &entries
	}
	if o.PresetOverrides.Observations != nil {
		entries := catalog.NormalizeEntries(*o.PresetOverrides.Observations, now)
		o.PresetOverrides.Observations = &entries
	}

	entries := map[string]daylog.Entry{}
	for date, entry := range o.Records.EntriesByDate {
		if !normalize.ValidDate(date) {
			continue
		}
		entry.Date = date
		entries[date] = daylog.Normalize(entry, effective.ContextFor(date))
	}
	o.Records.EntriesByDate = entries

	if o.UI.SelectedDate != "" && !normalize.ValidDate(o.UI.SelectedDate) {
		o.UI.SelectedDate = ""
	}
}

// Subscribe registers a change listener and returns its unsubscribe func.
func (s *Store) Subscribe(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

// subscribersLocked snapshots the listener set. Callers invoke the
// functions only after releasing s.mu; a subscriber reading back through
// the store must not find the lock held.
func (s *Store) subscribersLocked() []func() {
	out := make([]func(), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		out = append(out, fn)
	}
	return out
}

// Dispose drops all state and subscribers; the store can be re-initialized.
func (s *Store) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusUninitialized
	s.base = document.Document{}
	s.overlay = nil
	s.effective = document.Document{}
	s.subscribers = map[int]func(){}
}
