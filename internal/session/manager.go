package session

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	mrand "math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"memorymatch/internal/clock"
	"memorymatch/internal/game"
	"memorymatch/internal/game/memory"
	"memorymatch/internal/save"
	"memorymatch/internal/storage"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrProfileNotFound = errors.New("profile not found")
	ErrUnknownMode     = errors.New("unknown mode")
)

// Profile is a player profile as exposed by the API.
type Profile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Mode      string    `json:"mode"`
	CreatedAt time.Time `json:"createdAt"`
	LastSeen  time.Time `json:"lastSeen"`
	Session   string    `json:"session,omitempty"`
}

// Manager owns every live session, at most one per profile.
type Manager struct {
	mu        sync.RWMutex
	sessions  map[string]*Session // by code
	byProfile map[string]string   // profile id -> code
	registry  *game.Registry
	store     *storage.Store
	cue       game.Cue
	log       zerolog.Logger
	newRand   func() *mrand.Rand
}

// NewManager creates a session manager. cue, when non-nil, hears every
// session's cues in addition to connected viewers.
func NewManager(registry *game.Registry, store *storage.Store, cue game.Cue, log zerolog.Logger) *Manager {
	return &Manager{
		sessions:  make(map[string]*Session),
		byProfile: make(map[string]string),
		registry:  registry,
		store:     store,
		cue:       cue,
		log:       log,
		newRand: func() *mrand.Rand {
			return mrand.New(mrand.NewPCG(mrand.Uint64(), mrand.Uint64()))
		},
	}
}

// CreateProfile registers a new player. An empty mode picks the default.
func (m *Manager) CreateProfile(name, mode string) (Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Profile{}, errors.New("name required")
	}
	md, ok := m.registry.Get(mode)
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrUnknownMode, mode)
	}
	id := uuid.NewString()
	if err := m.store.CreateProfile(id, name, md.Name); err != nil {
		return Profile{}, fmt.Errorf("persist profile: %w", err)
	}
	m.log.Info().Str("profile", id).Str("mode", md.Name).Msg("profile created")
	return m.Profile(id)
}

// Profile returns a stored profile and its live session code, if any.
func (m *Manager) Profile(id string) (Profile, error) {
	row, err := m.store.GetProfile(id)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}
	if err != nil {
		return Profile{}, err
	}
	m.mu.RLock()
	code := m.byProfile[id]
	m.mu.RUnlock()
	return Profile{
		ID:        row.ID,
		Name:      row.Name,
		Mode:      row.Mode,
		CreatedAt: row.CreatedAt,
		LastSeen:  row.LastSeen,
		Session:   code,
	}, nil
}

// Open returns the profile's live session, resuming it from storage if it
// is not loaded.
func (m *Manager) Open(profileID string) (*Session, error) {
	m.mu.RLock()
	code, live := m.byProfile[profileID]
	s := m.sessions[code]
	m.mu.RUnlock()
	if live {
		return s, nil
	}

	row, err := m.store.GetProfile(profileID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, profileID)
	}
	if err != nil {
		return nil, err
	}
	md, ok := m.registry.Get(row.Mode)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMode, row.Mode)
	}

	s = m.newSession(m.uniqueCode(), row.ID, md)

	m.mu.Lock()
	if code, ok := m.byProfile[profileID]; ok {
		// lost a race with another Open
		m.mu.Unlock()
		return m.sessions[code], nil
	}
	m.sessions[s.Code] = s
	m.byProfile[profileID] = s.Code
	m.mu.Unlock()

	if err := s.Start(); err != nil {
		s.log.Error().Err(err).Msg("session started in error state")
	}
	if err := m.store.TouchProfile(profileID); err != nil {
		s.log.Warn().Err(err).Msg("touch profile")
	}
	s.log.Info().Msg("session opened")
	return s, nil
}

func (m *Manager) newSession(code, profileID string, md game.Mode) *Session {
	logger := m.log.With().Str("session", code).Str("profile", profileID).Logger()
	s := &Session{
		Code:      code,
		ProfileID: profileID,
		Mode:      md.Name,
		sched:     clock.NewScheduler(),
		viewers:   make(map[string]*Viewer),
		local:     m.cue,
		log:       logger,
	}
	s.machine = memory.New(memory.Options{
		Tuning:    md.Tuning,
		Scheduler: s.sched,
		Store:     save.NewGateway(m.store.Scoped(profileID)),
		Presenter: s,
		Cue:       s,
		Rand:      m.newRand(),
		Logger:    &logger,
	})
	return s
}

// Get returns a session by code.
func (m *Manager) Get(code string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[code]
	return s, ok
}

func (m *Manager) lookup(code string) (*Session, error) {
	s, ok := m.Get(code)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, code)
	}
	return s, nil
}

// List returns info for all live sessions, sorted by code.
func (m *Manager) List() []Info {
	infos := make([]Info, 0)
	for _, s := range m.snapshot() {
		infos = append(infos, s.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Code < infos[j].Code })
	return infos
}

func (m *Manager) snapshot() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Tap forwards a tap to a session.
func (m *Manager) Tap(code string, index int) (bool, memory.State, error) {
	s, err := m.lookup(code)
	if err != nil {
		return false, memory.State{}, err
	}
	ok, st := s.Tap(index)
	return ok, st, nil
}

// Suspend persists a session.
func (m *Manager) Suspend(code string) error {
	s, err := m.lookup(code)
	if err != nil {
		return err
	}
	return s.Suspend()
}

// SuspendAll persists every live session, for shutdown.
func (m *Manager) SuspendAll() error {
	var errs []error
	for _, s := range m.snapshot() {
		if err := s.Suspend(); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", s.Code, err))
		}
	}
	return errors.Join(errs...)
}

// Restart deals a session's current level again and returns the new state.
func (m *Manager) Restart(code string) (memory.State, error) {
	s, err := m.lookup(code)
	if err != nil {
		return memory.State{}, err
	}
	if err := s.Restart(); err != nil {
		return memory.State{}, err
	}
	return s.State(), nil
}

// Reset clears a session's saved progress and starts it over.
func (m *Manager) Reset(code string) error {
	s, err := m.lookup(code)
	if err != nil {
		return err
	}
	return s.Reset()
}

// ResetProfile clears a profile's saved progress, restarting its live
// session if one is loaded.
func (m *Manager) ResetProfile(profileID string) error {
	if _, err := m.Profile(profileID); err != nil {
		return err
	}
	m.mu.RLock()
	code, live := m.byProfile[profileID]
	m.mu.RUnlock()
	if live {
		return m.Reset(code)
	}
	return save.NewGateway(m.store.Scoped(profileID)).Clear()
}

// Close suspends a session and unloads it.
func (m *Manager) Close(code string) error {
	s, err := m.lookup(code)
	if err != nil {
		return err
	}
	err = s.Suspend()
	m.remove(s)
	return err
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.Code)
	if m.byProfile[s.ProfileID] == s.Code {
		delete(m.byProfile, s.ProfileID)
	}
	m.mu.Unlock()
	s.closeViewers()
	s.log.Info().Msg("session closed")
}

// Tick advances every live session's clock by dt.
func (m *Manager) Tick(dt time.Duration) {
	for _, s := range m.snapshot() {
		s.Advance(dt)
	}
}

// Run ticks sessions with real elapsed time until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Tick(now.Sub(last))
			last = now
		}
	}
}

// CleanupLoop unloads idle sessions periodically until ctx is done.
func (m *Manager) CleanupLoop(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.cleanup(now, maxIdle)
		}
	}
}

// cleanup suspends and unloads sessions without viewers that have been
// idle longer than maxIdle.
func (m *Manager) cleanup(now time.Time, maxIdle time.Duration) {
	for _, s := range m.snapshot() {
		if s.ViewerCount() > 0 || now.Sub(s.LastActive()) <= maxIdle {
			continue
		}
		if err := s.Suspend(); err != nil {
			s.log.Error().Err(err).Msg("suspend idle session")
			continue
		}
		s.log.Info().Msg("unloading idle session")
		m.remove(s)
	}
}

func (m *Manager) uniqueCode() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for {
		if code := generateCode(); m.sessions[code] == nil {
			return code
		}
	}
}

func generateCode() string {
	b := make([]byte, 3) // 6 hex chars
	rand.Read(b)
	return hex.EncodeToString(b)
}
