package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"tarottracker/internal/cache"
	"tarottracker/internal/models"
	"tarottracker/internal/repository"
)

// Phase is the derived lifecycle stage of the active session. It is never
// stored: it is recomputed from the fields on every read.
type Phase string

const (
	PhaseSetup         Phase = "SETUP"
	PhaseReadyToCreate Phase = "READY_TO_CREATE"
	PhaseActive        Phase = "ACTIVE"
)

const defaultDebounce = 500 * time.Millisecond

var (
	// ErrInvalidPhase is returned when Create is called outside READY_TO_CREATE.
	ErrInvalidPhase = errors.New("session: user, location and date are required")
	// ErrIndexOutOfRange is returned for reading mutations at an invalid index.
	ErrIndexOutOfRange = errors.New("session: reading index out of range")
)

// ExistsError reports that a session with the same (user, location, date)
// tuple already exists. The caller must choose to load it or abandon; there
// is no silent merge.
type ExistsError struct {
	Existing *models.Session
}

func (e *ExistsError) Error() string {
	return fmt.Sprintf("session: %s on %s already exists", e.Existing.Location, e.Existing.SessionDate)
}

// Records is the remote store surface the state machine needs.
type Records interface {
	Insert(ctx context.Context, session *models.Session) (*models.Session, error)
	Update(ctx context.Context, session *models.Session) error
	FindByKey(ctx context.Context, user, location, date string) (*models.Session, error)
}

// Blobs is the per-user local cache surface.
type Blobs interface {
	SaveUserBlob(ctx context.Context, user string, data []byte) error
	LoadUserBlob(ctx context.Context, user string) ([]byte, error)
	DeleteUserBlob(ctx context.Context, user string) error
}

// State is the cached snapshot of the active session. Field names match the
// blob the browser build wrote, so existing caches stay readable.
type State struct {
	SessionID   string           `json:"sessionId"`
	User        string           `json:"user"`
	Location    string           `json:"location"`
	SessionDate string           `json:"sessionDate"`
	Price       float64          `json:"price"`
	Readings    []models.Reading `json:"readings"`
}

// Config tunes the store.
type Config struct {
	// Debounce is the coalescing window for field-edit persistence.
	Debounce time.Duration
}

// Store holds the single active session, derives its phase, and persists it
// to the local cache and the record store. State changes are announced
// through OnChange; persistence failures are logged and reported through
// OnOffline, never returned to the caller.
type Store struct {
	records Records
	blobs   Blobs
	logger  *zap.Logger

	mu       sync.Mutex
	id       string
	user     string
	location string
	date     string
	price    float64
	readings []models.Reading
	loading  bool

	debounce  time.Duration
	saveTimer *time.Timer

	onChange  func(State)
	onOffline func()
}

// New builds a store in SETUP phase.
func New(cfg Config, records Records, blobs Blobs, logger *zap.Logger) *Store {
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Store{
		records:  records,
		blobs:    blobs,
		logger:   logger,
		price:    models.DefaultReadingPrice,
		debounce: debounce,
	}
}

// OnChange registers the presentation callback invoked after every mutation.
func (s *Store) OnChange(fn func(State)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// OnOffline registers the background-sync signal invoked on remote write failure.
func (s *Store) OnOffline(fn func()) {
	s.mu.Lock()
	s.onOffline = fn
	s.mu.Unlock()
}

// Close stops any pending debounced save.
func (s *Store) Close() {
	s.mu.Lock()
	if s.saveTimer != nil {
		s.saveTimer.Stop()
		s.saveTimer = nil
	}
	s.mu.Unlock()
}

func (s *Store) canCreateLocked() bool {
	return strings.TrimSpace(s.user) != "" &&
		strings.TrimSpace(s.location) != "" &&
		s.date != "" &&
		s.price != 0
}

func (s *Store) hasValidLocked() bool {
	return s.id != "" &&
		strings.TrimSpace(s.user) != "" &&
		strings.TrimSpace(s.location) != "" &&
		s.date != ""
}

func (s *Store) phaseLocked() Phase {
	if s.hasValidLocked() {
		return PhaseActive
	}
	if s.canCreateLocked() {
		return PhaseReadyToCreate
	}
	return PhaseSetup
}

// Phase derives the current lifecycle stage.
func (s *Store) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phaseLocked()
}

func (s *Store) snapshotLocked() State {
	return State{
		SessionID:   s.id,
		User:        s.user,
		Location:    s.location,
		SessionDate: s.date,
		Price:       s.price,
		Readings:    append([]models.Reading(nil), s.readings...),
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Totals recomputes the money stats from the current readings.
func (s *Store) Totals() models.Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.ComputeTotals(s.readings, s.price)
}

func (s *Store) notify(state State) {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

func (s *Store) signalOffline() {
	s.mu.Lock()
	fn := s.onOffline
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// SetUser switches the active user. Switching away from a different user
// while a session is ACTIVE abandons it: id, location, date and readings are
// cleared and the price reverts to the default. Confirmation is the caller's
// job; the setter never asks.
func (s *Store) SetUser(value string) {
	s.mu.Lock()
	wasActive := s.hasValidLocked()
	previous := s.user
	s.user = value
	if wasActive && previous != "" && previous != value {
		s.id = ""
		s.location = ""
		s.date = ""
		s.price = models.DefaultReadingPrice
		s.readings = nil
	}
	state := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(state)
	s.debouncedSave()
}

// SetLocation updates the location field.
func (s *Store) SetLocation(value string) {
	s.mu.Lock()
	s.location = value
	state := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(state)
	s.debouncedSave()
}

// SetDate updates the session date.
func (s *Store) SetDate(value string) {
	s.mu.Lock()
	s.date = value
	state := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(state)
	s.debouncedSave()
}

// SetPrice updates the base reading price.
func (s *Store) SetPrice(value float64) {
	s.mu.Lock()
	s.price = value
	state := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(state)
	s.debouncedSave()
}

// AddReading appends a reading and persists immediately.
func (s *Store) AddReading(reading models.Reading) {
	s.mu.Lock()
	s.readings = append(s.readings, reading)
	state := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(state)
	go s.Save(context.Background())
}

// RemoveReading deletes the reading at index and persists immediately.
func (s *Store) RemoveReading(index int) error {
	s.mu.Lock()
	if index < 0 || index >= len(s.readings) {
		s.mu.Unlock()
		return ErrIndexOutOfRange
	}
	s.readings = append(s.readings[:index], s.readings[index+1:]...)
	state := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(state)
	go s.Save(context.Background())
	return nil
}

// UpdateReading mutates one reading in place and schedules a debounced save.
func (s *Store) UpdateReading(index int, mutate func(*models.Reading)) error {
	s.mu.Lock()
	if index < 0 || index >= len(s.readings) {
		s.mu.Unlock()
		return ErrIndexOutOfRange
	}
	mutate(&s.readings[index])
	state := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(state)
	s.debouncedSave()
	return nil
}

// Create persists the staged session as a new row. Only legal in
// READY_TO_CREATE. If a row with the same (user, location, date) tuple
// already exists an *ExistsError carrying it is returned and nothing is
// written. On success the new id is adopted, the phase becomes ACTIVE, and
// the locally staged readings are cleared so they cannot be double-submitted
// against the fresh row. A store failure is logged and reported through the
// offline signal; the phase stays READY_TO_CREATE.
func (s *Store) Create(ctx context.Context) error {
	s.mu.Lock()
	if s.phaseLocked() != PhaseReadyToCreate {
		s.mu.Unlock()
		return ErrInvalidPhase
	}
	candidate := models.Session{
		UserName:     s.user,
		Location:     s.location,
		SessionDate:  s.date,
		ReadingPrice: s.price,
		Readings:     append([]models.Reading(nil), s.readings...),
	}
	s.mu.Unlock()

	existing, err := s.records.FindByKey(ctx, candidate.UserName, candidate.Location, candidate.SessionDate)
	if err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
		s.logger.Error("session lookup failed",
			zap.String("user", candidate.UserName),
			zap.String("location", candidate.Location),
			zap.Error(err))
		s.signalOffline()
		return nil
	}
	if existing != nil {
		return &ExistsError{Existing: existing}
	}

	created, err := s.records.Insert(ctx, &candidate)
	if err != nil {
		s.logger.Error("session insert failed",
			zap.String("user", candidate.UserName),
			zap.String("location", candidate.Location),
			zap.Error(err))
		s.signalOffline()
		return nil
	}

	s.mu.Lock()
	s.id = created.ID
	s.readings = nil
	state := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(state)
	go s.Save(context.Background())
	return nil
}

// LoadExisting adopts all fields from a persisted row in one atomic update.
func (s *Store) LoadExisting(row *models.Session) {
	s.mu.Lock()
	s.loading = true
	s.id = row.ID
	s.user = row.UserName
	s.location = row.Location
	s.date = row.SessionDate
	s.price = row.ReadingPrice
	if s.price == 0 {
		s.price = models.DefaultReadingPrice
	}
	s.readings = append([]models.Reading(nil), row.Readings...)
	s.loading = false
	state := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(state)
}

// LoadFromCache restores the current user's cached state, if any.
func (s *Store) LoadFromCache(ctx context.Context) {
	s.mu.Lock()
	user := s.user
	s.mu.Unlock()
	if user == "" {
		return
	}

	data, err := s.blobs.LoadUserBlob(ctx, user)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			s.logger.Warn("failed to load cached state", zap.String("user", user), zap.Error(err))
		}
		return
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Warn("failed to decode cached state", zap.String("user", user), zap.Error(err))
		return
	}

	s.mu.Lock()
	s.loading = true
	s.id = state.SessionID
	s.location = state.Location
	s.date = state.SessionDate
	s.price = state.Price
	if s.price == 0 {
		s.price = models.DefaultReadingPrice
	}
	s.readings = state.Readings
	s.loading = false
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snapshot)
}

// SelectUser overwrites the user's cache with a clean slate, switches to the
// user, and restores whatever the clean slate now holds.
func (s *Store) SelectUser(ctx context.Context, user string) {
	clean := State{
		User:     user,
		Price:    models.DefaultReadingPrice,
		Readings: []models.Reading{},
	}
	data, err := json.Marshal(clean)
	if err == nil {
		if err := s.blobs.SaveUserBlob(ctx, user, data); err != nil {
			s.logger.Warn("failed to reset user cache", zap.String("user", user), zap.Error(err))
		}
	}
	s.SetUser(user)
	s.LoadFromCache(ctx)
}

// Reset returns to SETUP: id, location, date and readings are wiped, the
// price reverts to the default, the user is preserved and their cache entry
// is dropped.
func (s *Store) Reset(ctx context.Context) {
	s.mu.Lock()
	s.id = ""
	s.location = ""
	s.date = ""
	s.price = models.DefaultReadingPrice
	s.readings = nil
	user := s.user
	state := s.snapshotLocked()
	s.mu.Unlock()

	if user != "" {
		if err := s.blobs.DeleteUserBlob(ctx, user); err != nil {
			s.logger.Warn("failed to clear user cache", zap.String("user", user), zap.Error(err))
		}
	}
	s.notify(state)
}

func (s *Store) debouncedSave() {
	s.mu.Lock()
	if s.saveTimer != nil {
		s.saveTimer.Stop()
	}
	s.saveTimer = time.AfterFunc(s.debounce, func() {
		s.Save(context.Background())
	})
	s.mu.Unlock()
}

// Save persists the current state: always to the per-user cache, and to the
// record store when the session has an id. Skipped entirely without a user
// or while a load is in progress. Failures are logged and signalled, never
// returned: persistence must not block or fail the user's action.
func (s *Store) Save(ctx context.Context) {
	s.mu.Lock()
	if s.user == "" || s.loading {
		s.mu.Unlock()
		return
	}
	state := s.snapshotLocked()
	s.mu.Unlock()

	data, err := json.Marshal(state)
	if err != nil {
		s.logger.Error("failed to encode state", zap.Error(err))
		return
	}
	if err := s.blobs.SaveUserBlob(ctx, state.User, data); err != nil {
		s.logger.Warn("failed to cache state", zap.String("user", state.User), zap.Error(err))
	}

	if state.SessionID == "" {
		return
	}
	row := models.Session{
		ID:           state.SessionID,
		UserName:     state.User,
		Location:     state.Location,
		SessionDate:  state.SessionDate,
		ReadingPrice: state.Price,
		Readings:     state.Readings,
	}
	if err := s.records.Update(ctx, &row); err != nil {
		s.logger.Error("session update failed",
			zap.String("session_id", state.SessionID),
			zap.String("user", state.User),
			zap.Error(err))
		s.signalOffline()
	}
}
