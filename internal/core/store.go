// Package core owns the ordered house collection and its lifecycle rules.
package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"citybuilder/internal/clock"
	"citybuilder/pkg/domain"
)

// Op names a Store operation in change notifications and metrics.
type Op string

// Store operations.
const (
	OpAdd            Op = "add"
	OpDuplicate      Op = "duplicate"
	OpRename         Op = "rename"
	OpRecolorHouse   Op = "recolor_house"
	OpRecolorFloor   Op = "recolor_floor"
	OpSetFloorCount  Op = "set_floor_count"
	OpRequestRemoval Op = "request_removal"
	OpPurge          Op = "purge"
	OpSettle         Op = "settle"
	OpReorder        Op = "reorder"
)

// Change describes one applied mutation. Houses is a deep copy of the full
// sequence after the mutation.
type Change struct {
	Op      Op
	HouseID string
	Houses  []domain.House
}

// Listener observes applied mutations. Listeners run synchronously, in
// operation order, before the mutating call returns; they must not call back
// into the Store.
type Listener func(Change)

// Timings holds the delays driving lifecycle transitions.
type Timings struct {
	// Settle is the delay after creation before an added house becomes default.
	Settle time.Duration
	// Remove is the delay after a removal request before the house is purged.
	Remove time.Duration
	// Animation is the exit animation duration declared by the presentation
	// layer. Remove must be strictly shorter.
	Animation time.Duration
}

// DefaultTimings matches the presentation layer's 600ms scale animations.
func DefaultTimings() Timings {
	return Timings{
		Settle:    700 * time.Millisecond,
		Remove:    500 * time.Millisecond,
		Animation: 600 * time.Millisecond,
	}
}

// Validate checks that the delays are positive and that a removed house
// leaves the collection before its exit animation completes.
func (t Timings) Validate() error {
	if t.Settle <= 0 || t.Remove <= 0 || t.Animation <= 0 {
		return fmt.Errorf("timings must be positive: settle=%s remove=%s animation=%s", t.Settle, t.Remove, t.Animation)
	}
	if t.Remove >= t.Animation {
		return fmt.Errorf("remove delay %s must be shorter than animation %s", t.Remove, t.Animation)
	}
	return nil
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithScheduler sets the scheduler used for settle and purge transitions.
func WithScheduler(s clock.Scheduler) StoreOption {
	return func(st *Store) {
		if s != nil {
			st.sched = s
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) StoreOption {
	return func(st *Store) {
		if l != nil {
			st.logger = l
		}
	}
}

// WithMetrics sets the operation metrics recorder.
func WithMetrics(m MetricsRecorder) StoreOption {
	return func(st *Store) {
		if m != nil {
			st.metrics = m
		}
	}
}

// WithIDGenerator overrides house id minting.
func WithIDGenerator(fn func() string) StoreOption {
	return func(st *Store) {
		if fn != nil {
			st.newID = fn
		}
	}
}

// WithTimings overrides the lifecycle delays. Callers are expected to have
// validated them; see Timings.Validate.
func WithTimings(t Timings) StoreOption {
	return func(st *Store) { st.timings = t }
}

// Store is the single owner of the ordered house collection. Every mutation
// goes through one of its operations, is applied under one lock, and is
// published to listeners as a fresh snapshot. Operations targeting unknown
// ids are silent no-ops.
type Store struct {
	mu        sync.Mutex
	houses    []domain.House
	listeners []subscription
	nextSub   int
	timers    map[uint64]clock.Timer
	nextTimer uint64
	closed    bool

	sched   clock.Scheduler
	timings Timings
	logger  *zap.Logger
	metrics MetricsRecorder
	newID   func() string
}

// NewStore constructs an empty Store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		timers:    make(map[uint64]clock.Timer),
		sched:     clock.Real{},
		timings:   DefaultTimings(),
		logger:    zap.NewNop(),
		metrics:   noopMetrics{},
		newID:     func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Timings returns the configured lifecycle delays.
func (s *Store) Timings() Timings { return s.timings }

type subscription struct {
	id int
	fn Listener
}

// Subscribe registers a listener and returns a function removing it.
// Listeners are called in subscription order.
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.listeners = append(s.listeners, subscription{id: id, fn: l})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.listeners {
			if sub.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// Snapshot returns a deep copy of the current sequence.
func (s *Store) Snapshot() []domain.House {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Get returns a copy of the house with the given id.
func (s *Store) Get(id string) (domain.House, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.houses[i].Clone(), true
	}
	return domain.House{}, false
}

// Len returns the number of houses, including ones awaiting purge.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.houses)
}

// Add appends a new default house and schedules it to settle.
func (s *Store) Add() domain.House {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	h := domain.NewHouse(s.newID())
	s.houses = append(s.houses, h)
	s.scheduleSettleLocked(h.ID)
	s.logger.Debug("house added", zap.String("house_id", h.ID))
	s.commitLocked(OpAdd, h.ID, start)
	return h.Clone()
}

// Duplicate appends an independent copy of the source house under a new id.
func (s *Store) Duplicate(sourceID string) (domain.House, bool) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(sourceID)
	if i < 0 {
		s.noopLocked(OpDuplicate, sourceID, start)
		return domain.House{}, false
	}
	src := s.houses[i]
	dup := domain.House{
		ID:     s.newID(),
		Name:   src.Name,
		Color:  src.Color,
		Floors: domain.ChangeFloorCount(src.Floors, len(src.Floors)),
		Status: domain.StatusAdded,
	}
	dup.Height = domain.DeriveHeight(len(dup.Floors))
	s.houses = append(s.houses, dup)
	s.scheduleSettleLocked(dup.ID)
	s.logger.Debug("house duplicated", zap.String("source_id", sourceID), zap.String("house_id", dup.ID))
	s.commitLocked(OpDuplicate, dup.ID, start)
	return dup.Clone(), true
}

// Rename replaces the name of a house. Any string is accepted.
func (s *Store) Rename(id, name string) (domain.House, bool) {
	return s.update(OpRename, id, func(h *domain.House) { h.Name = name })
}

// RecolorHouse replaces the base color key of a house. Membership in the
// palette is not checked; rendering falls back for unknown keys.
func (s *Store) RecolorHouse(id, colorKey string) (domain.House, bool) {
	return s.update(OpRecolorHouse, id, func(h *domain.House) { h.Color = colorKey })
}

// RecolorFloor sets the color override of one floor. An empty color restores
// inheritance from the house color. floorID addresses the current id space.
func (s *Store) RecolorFloor(id string, floorID int, color string) (domain.House, bool) {
	return s.update(OpRecolorFloor, id, func(h *domain.House) {
		h.Floors = domain.RecolorFloor(h.Floors, floorID, color)
	})
}

// SetFloorCount resizes a house, silently clamping n to [1,12].
func (s *Store) SetFloorCount(id string, n int) (domain.House, bool) {
	return s.update(OpSetFloorCount, id, func(h *domain.House) {
		h.Floors = domain.ChangeFloorCount(h.Floors, domain.ClampFloorCount(n))
	})
}

// RequestRemoval marks a house removed right away and purges it after the
// remove delay. A house already marked removed keeps its original purge.
func (s *Store) RequestRemoval(id string) bool {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		s.noopLocked(OpRequestRemoval, id, start)
		return false
	}
	if s.houses[i].Status == domain.StatusRemoved {
		s.noopLocked(OpRequestRemoval, id, start)
		return true
	}
	s.houses[i].Status = domain.StatusRemoved
	s.schedulePurgeLocked(id)
	s.logger.Debug("house removal requested", zap.String("house_id", id), zap.Duration("purge_in", s.timings.Remove))
	s.commitLocked(OpRequestRemoval, id, start)
	return true
}

// Reorder moves a house to the position the target occupies, shifting the
// others while preserving their relative order. For [A,B,C], moving A onto B
// gives [B,A,C] and moving C onto A gives [C,A,B].
func (s *Store) Reorder(movedID, targetID string) ([]domain.House, bool) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	from, to := s.indexLocked(movedID), s.indexLocked(targetID)
	if from < 0 || to < 0 || movedID == targetID {
		s.noopLocked(OpReorder, movedID, start)
		return s.snapshotLocked(), false
	}
	moved := s.houses[from]
	rest := make([]domain.House, 0, len(s.houses))
	rest = append(rest, s.houses[:from]...)
	rest = append(rest, s.houses[from+1:]...)
	out := make([]domain.House, 0, len(s.houses))
	out = append(out, rest[:to]...)
	out = append(out, moved)
	out = append(out, rest[to:]...)
	s.houses = out
	s.logger.Debug("house reordered", zap.String("house_id", movedID), zap.String("target_id", targetID), zap.Int("index", to))
	s.commitLocked(OpReorder, movedID, start)
	return s.snapshotLocked(), true
}

// Replace installs a hydrated sequence. Houses are normalized, duplicate ids
// keep their first occurrence, no timers are scheduled and listeners are not
// notified.
func (s *Store) Replace(houses []domain.House) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{}, len(houses))
	out := make([]domain.House, 0, len(houses))
	for _, h := range houses {
		if _, dup := seen[h.ID]; dup {
			s.logger.Warn("dropping duplicate house id", zap.String("house_id", h.ID))
			continue
		}
		seen[h.ID] = struct{}{}
		out = append(out, h.Normalize())
	}
	s.houses = out
	s.metrics.ObserveSize(len(out))
}

// ResumeTransitions schedules the transitions a hydrated sequence was in the
// middle of: houses still added settle, houses still removed are purged.
func (s *Store) ResumeTransitions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.houses {
		switch h.Status {
		case domain.StatusAdded:
			s.scheduleSettleLocked(h.ID)
		case domain.StatusRemoved:
			s.schedulePurgeLocked(h.ID)
		}
	}
}

// Close stops pending transitions. It is meant for process shutdown; houses
// awaiting settle or purge keep their current status.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

func (s *Store) update(op Op, id string, mutate func(*domain.House)) (domain.House, bool) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		s.noopLocked(op, id, start)
		return domain.House{}, false
	}
	h := s.houses[i].Clone()
	mutate(&h)
	h.Height = domain.DeriveHeight(len(h.Floors))
	s.houses[i] = h
	s.commitLocked(op, id, start)
	return h.Clone(), true
}

func (s *Store) settle(id string) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if s.closed || i < 0 || s.houses[i].Status != domain.StatusAdded {
		s.noopLocked(OpSettle, id, start)
		return
	}
	s.houses[i].Status = domain.StatusDefault
	s.commitLocked(OpSettle, id, start)
}

func (s *Store) purge(id string) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if s.closed || i < 0 {
		s.noopLocked(OpPurge, id, start)
		return
	}
	out := make([]domain.House, 0, len(s.houses)-1)
	for _, h := range s.houses {
		if h.ID != id {
			out = append(out, h)
		}
	}
	s.houses = out
	s.logger.Debug("house purged", zap.String("house_id", id))
	s.commitLocked(OpPurge, id, start)
}

func (s *Store) scheduleSettleLocked(id string) {
	s.scheduleLocked(s.timings.Settle, func() { s.settle(id) })
}

func (s *Store) schedulePurgeLocked(id string) {
	s.scheduleLocked(s.timings.Remove, func() { s.purge(id) })
}

// scheduleLocked tracks the timer so Close can stop it. The continuation
// cannot observe the map before the caller releases the lock.
func (s *Store) scheduleLocked(d time.Duration, fn func()) {
	if s.closed {
		return
	}
	s.nextTimer++
	token := s.nextTimer
	s.timers[token] = s.sched.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, token)
		s.mu.Unlock()
		fn()
	})
}

func (s *Store) commitLocked(op Op, id string, start time.Time) {
	s.metrics.Observe(op, true, time.Since(start))
	s.metrics.ObserveSize(len(s.houses))
	if len(s.listeners) == 0 {
		return
	}
	change := Change{Op: op, HouseID: id}
	for _, sub := range s.listeners {
		change.Houses = s.snapshotLocked()
		sub.fn(change)
	}
}

func (s *Store) noopLocked(op Op, id string, start time.Time) {
	s.metrics.Observe(op, false, time.Since(start))
	s.logger.Debug("store operation ignored", zap.String("op", string(op)), zap.String("house_id", id))
}

func (s *Store) indexLocked(id string) int {
	for i := range s.houses {
		if s.houses[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) snapshotLocked() []domain.House {
	out := make([]domain.House, len(s.houses))
	for i, h := range s.houses {
		out[i] = h.Clone()
	}
	return out
}
