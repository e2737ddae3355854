package settings

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"tarottracker/internal/cache"
)

// Settings is the process-wide configuration blob. Any key absent from the
// persisted JSON keeps its documented default.
type Settings struct {
	Sound              bool     `json:"sound"`
	Haptic             bool     `json:"haptic"`
	DarkMode           bool     `json:"darkMode"`
	DefaultTimer       int      `json:"defaultTimer"`
	TimerNotifications bool     `json:"timerNotifications"`
	DailySummary       bool     `json:"dailySummary"`
	WeekendGoals       bool     `json:"weekendGoals"`
	BestDay            bool     `json:"bestDay"`
	TipTrends          bool     `json:"tipTrends"`
	PeakTime           bool     `json:"peakTime"`
	PaymentMethods     []string `json:"paymentMethods"`
	Sources            []string `json:"sources"`
}

// Defaults returns the documented default settings.
func Defaults() Settings {
	return Settings{
		Sound:              true,
		Haptic:             true,
		DarkMode:           false,
		DefaultTimer:       15,
		TimerNotifications: true,
		DailySummary:       true,
		WeekendGoals:       true,
		BestDay:            true,
		TipTrends:          true,
		PeakTime:           true,
		PaymentMethods:     []string{"Cash", "CC", "Venmo", "PayPal", "Cash App"},
		Sources:            []string{"Referral", "Renu", "POG", "Repeat"},
	}
}

// Blobs is the persistence surface the store needs.
type Blobs interface {
	SaveSettings(ctx context.Context, data []byte) error
	LoadSettings(ctx context.Context) ([]byte, error)
}

// Store holds the single settings instance and persists it as one blob.
type Store struct {
	mu       sync.Mutex
	blobs    Blobs
	logger   *zap.Logger
	settings Settings
}

// NewStore loads persisted settings merged over defaults. A load failure
// falls back to defaults: settings are never a reason to refuse startup.
func NewStore(ctx context.Context, blobs Blobs, logger *zap.Logger) *Store {
	store := &Store{
		blobs:    blobs,
		logger:   logger,
		settings: Defaults(),
	}
	if blobs == nil {
		return store
	}

	data, err := blobs.LoadSettings(ctx)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			logger.Warn("failed to load settings, using defaults", zap.Error(err))
		}
		return store
	}

	// Unmarshal over the pre-filled defaults: absent keys keep their default,
	// present keys (including explicit false / empty list) win.
	if err := json.Unmarshal(data, &store.settings); err != nil {
		logger.Warn("failed to decode settings, using defaults", zap.Error(err))
		store.settings = Defaults()
	}
	return store
}

// Current returns a copy of the settings.
func (s *Store) Current() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := s.settings
	copied.PaymentMethods = append([]string(nil), s.settings.PaymentMethods...)
	copied.Sources = append([]string(nil), s.settings.Sources...)
	return copied
}

// Update applies a mutation and persists the whole blob.
func (s *Store) Update(ctx context.Context, mutate func(*Settings)) error {
	s.mu.Lock()
	mutate(&s.settings)
	data, err := json.Marshal(s.settings)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if s.blobs == nil {
		return nil
	}
	if err := s.blobs.SaveSettings(ctx, data); err != nil {
		s.logger.Warn("failed to persist settings", zap.Error(err))
	}
	return nil
}
