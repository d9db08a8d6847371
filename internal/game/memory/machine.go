// Package memory is the level/session state machine of the memory-match
// game: it deals levels, resolves card pairs, keeps score and persists
// progress after every settled transition.
package memory

import (
	"errors"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"memorymatch/internal/clock"
	"memorymatch/internal/deck"
	"memorymatch/internal/game"
	"memorymatch/internal/save"
)

// Phase is the machine's position in the level cycle.
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhasePreview       Phase = "preview"
	PhasePlaying       Phase = "playing"
	PhaseResolving     Phase = "resolving"
	PhaseLevelComplete Phase = "level_complete"
	PhaseLevelFailed   Phase = "level_failed"
	PhaseErrored       Phase = "errored"
)

// Store persists session records. save.Gateway implements it.
type Store interface {
	Save(r save.Record) error
	Load() (save.Record, error)
	LoadLegacy() (save.Legacy, error)
	Clear() error
}

// Card is the live state of one dealt card. Matched implies Revealed.
type Card struct {
	deck.Descriptor
	Revealed bool
	Matched  bool
	Position game.Position
}

// Options configures a Machine. Nil collaborators are replaced with no-ops.
type Options struct {
	Tuning    game.Tuning
	Scheduler *clock.Scheduler
	Store     Store
	Presenter game.Presenter
	Cue       game.Cue
	Rand      *rand.Rand
	Logger    *zerolog.Logger
}

// Machine owns one player's session. It is not safe for concurrent use;
// callers serialize Tap, Start, Suspend and scheduler ticks.
type Machine struct {
	tuning game.Tuning
	sched  *clock.Scheduler
	store  Store
	view   game.Presenter
	cue    game.Cue
	rng    *rand.Rand
	log    zerolog.Logger

	phase Phase
	busy  bool
	err   error

	level      int
	score      int
	totalScore int
	movesUsed  int
	movesLimit int
	combo      int
	comboShown bool

	rows          int
	columns       int
	previewTime   time.Duration
	mismatchDelay time.Duration
	cards         []Card
	matched       int
	first         int
	second        int
}

// New builds an idle machine. Call Start to deal or resume.
func New(opts Options) *Machine {
	m := &Machine{
		tuning: opts.Tuning,
		sched:  opts.Scheduler,
		store:  opts.Store,
		view:   opts.Presenter,
		cue:    opts.Cue,
		rng:    opts.Rand,
		log:    zerolog.Nop(),
		phase:  PhaseIdle,
		busy:   true,
		first:  -1,
		second: -1,
	}
	if opts.Logger != nil {
		m.log = *opts.Logger
	}
	if m.sched == nil {
		m.sched = clock.NewScheduler()
	}
	if m.store == nil {
		m.store = nopStore{}
	}
	if m.view == nil {
		m.view = game.NopPresenter{}
	}
	if m.cue == nil {
		m.cue = game.NopCue{}
	}
	return m
}

// Start resumes the saved session if there is a valid one, otherwise deals
// a fresh deck at the legacy record's level, otherwise at level zero.
func (m *Machine) Start() error {
	m.sched.CancelAll()

	rec, err := m.store.Load()
	switch {
	case err == nil:
		if err := m.restore(rec); err != nil {
			m.log.Warn().Err(err).Msg("discarding saved session")
			break
		}
		m.log.Info().Int("level", m.level).Int("matched", m.matched).Msg("resumed session")
		return nil
	case errors.Is(err, save.ErrNoSave):
	default:
		m.log.Warn().Err(err).Msg("discarding saved session")
	}

	legacy, err := m.store.LoadLegacy()
	switch {
	case err == nil:
		m.log.Info().Int("level", legacy.LevelIndex).Int("score", legacy.Score).Msg("starting from legacy progress")
		m.totalScore = legacy.Score
		return m.startLevel(legacy.LevelIndex)
	case !errors.Is(err, save.ErrNoSave):
		m.log.Warn().Err(err).Msg("discarding legacy progress")
	}

	m.totalScore = 0
	return m.startLevel(0)
}

// Tap selects a card. It reports whether the tap was accepted; taps while
// busy, outside Playing, out of range, or on a revealed or matched card
// are ignored.
func (m *Machine) Tap(index int) bool {
	if m.busy || m.phase != PhasePlaying {
		return false
	}
	if index < 0 || index >= len(m.cards) {
		return false
	}
	c := &m.cards[index]
	if c.Matched || c.Revealed {
		return false
	}

	m.cue.OnTap()
	c.Revealed = true
	m.view.Reveal(m.cardView(index, true))

	if m.first < 0 {
		m.first = index
		m.persist()
		return true
	}

	m.second = index
	m.movesUsed++
	m.phase = PhaseResolving
	m.busy = true
	m.resolve()
	return true
}

// Suspend writes the current state, including a revealed but unresolved
// pair, so the session resumes exactly.
func (m *Machine) Suspend() error {
	if m.phase == PhaseIdle || m.phase == PhaseErrored {
		return nil
	}
	return m.store.Save(m.record())
}

// Restart abandons the current attempt and deals the same level again with
// a fresh deck and move budget.
func (m *Machine) Restart() error {
	m.sched.CancelAll()
	return m.startLevel(m.level)
}

// Reset clears all persisted progress and starts over at level zero.
func (m *Machine) Reset() error {
	m.sched.CancelAll()
	if err := m.store.Clear(); err != nil {
		m.log.Error().Err(err).Msg("clear saved progress")
		return err
	}
	m.totalScore = 0
	return m.startLevel(0)
}

// Err returns the error that put the machine into PhaseErrored.
func (m *Machine) Err() error { return m.err }

// Phase returns the current phase.
func (m *Machine) Phase() Phase { return m.phase }

func (m *Machine) startLevel(level int) error {
	lvl, err := m.tuning.Curve.Next(level, m.tuning.Start)
	if err != nil {
		return m.fail(level, err)
	}
	descs, err := deck.Build(lvl.Pairs(), len(m.tuning.Faces), m.rng)
	if err != nil {
		return m.fail(level, err)
	}

	m.sched.CancelAll()
	if m.comboShown {
		m.comboShown = false
		m.view.HideCombo()
	}

	m.err = nil
	m.level = level
	m.rows, m.columns = lvl.Rows, lvl.Columns
	m.previewTime, m.mismatchDelay = lvl.PreviewTime, lvl.MismatchDelay
	m.score = 0
	m.combo = 0
	m.movesUsed = 0
	m.movesLimit = m.tuning.Curve.MoveLimit(lvl.Pairs(), m.rng)
	m.matched = 0
	m.first, m.second = -1, -1

	m.cards = make([]Card, len(descs))
	for i, d := range descs {
		m.cards[i] = Card{Descriptor: d, Position: m.position(i)}
	}

	m.log.Info().Int("level", level).Int("rows", m.rows).Int("columns", m.columns).
		Int("moves_limit", m.movesLimit).Msg("level dealt")
	m.view.Layout(m.level, m.rows, m.columns, m.cardViews())
	m.enterPreview()
	return nil
}

// fail moves to PhaseErrored without touching the rest of the state.
func (m *Machine) fail(level int, err error) error {
	m.sched.CancelAll()
	m.err = err
	m.phase = PhaseErrored
	m.busy = true
	m.log.Error().Err(err).Int("level", level).Msg("level generation aborted")
	return err
}

func (m *Machine) enterPreview() {
	m.phase = PhasePreview
	m.busy = true
	for i := range m.cards {
		m.view.SetInteractable(i, false)
		m.view.Reveal(m.cardView(i, true))
	}
	m.persist()
	m.sched.Schedule(clock.SlotTransition, m.previewTime, m.endPreview)
}

func (m *Machine) endPreview() {
	for i := range m.cards {
		if m.cards[i].Matched {
			continue
		}
		m.view.Hide(i)
		m.view.SetInteractable(i, true)
	}
	m.phase = PhasePlaying
	m.busy = false
	m.persist()
}

func (m *Machine) resolve() {
	i, j := m.first, m.second
	a, b := &m.cards[i], &m.cards[j]

	if a.CardID == b.CardID {
		a.Matched, b.Matched = true, true
		m.matched += 2
		m.combo++
		award := m.tuning.ScorePerMatch
		if m.combo > 1 {
			award += m.tuning.ComboBonusPerMatch * (m.combo - 1)
		}
		m.score += award

		m.view.Match(m.cardView(i, true))
		m.view.Match(m.cardView(j, true))
		m.view.SetInteractable(i, false)
		m.view.SetInteractable(j, false)
		m.cue.OnMatch()
		if m.combo > 1 {
			m.comboShown = true
			m.view.ShowCombo(m.combo)
			m.sched.Schedule(clock.SlotCombo, m.tuning.ComboDisplayTime, m.hideCombo)
		}

		m.first, m.second = -1, -1
		m.persist()
		m.settle()
		return
	}

	m.combo = 0
	m.sched.Schedule(clock.SlotTransition, m.mismatchDelay, func() {
		m.cards[i].Revealed = false
		m.cards[j].Revealed = false
		m.view.Hide(i)
		m.view.Hide(j)
		m.first, m.second = -1, -1
		m.persist()
		m.settle()
	})
}

// settle runs the post-resolution checks. A completed grid wins even when
// the move budget is spent.
func (m *Machine) settle() {
	switch {
	case m.matched == len(m.cards):
		m.phase = PhaseLevelComplete
		m.busy = true
		m.log.Info().Int("level", m.level).Int("score", m.score).Int("moves", m.movesUsed).Msg("level complete")
		m.cue.OnLevelWin()
		m.sched.Schedule(clock.SlotTransition, m.tuning.LevelCompleteDelay, m.advance)
	case m.movesUsed >= m.movesLimit:
		m.phase = PhaseLevelFailed
		m.busy = true
		m.log.Info().Int("level", m.level).Int("moves", m.movesUsed).Msg("level failed")
		m.cue.OnLevelLose()
		m.sched.Schedule(clock.SlotTransition, m.tuning.LevelFailedDelay, m.retry)
	default:
		m.phase = PhasePlaying
		m.busy = false
	}
}

func (m *Machine) advance() {
	m.totalScore += m.score
	m.score = 0
	_ = m.startLevel(m.level + 1)
}

func (m *Machine) retry() {
	_ = m.startLevel(m.level)
}

func (m *Machine) hideCombo() {
	if !m.comboShown {
		return
	}
	m.comboShown = false
	m.view.HideCombo()
}

// persist saves after a settled transition. Failures are logged; play
// continues.
func (m *Machine) persist() {
	if err := m.store.Save(m.record()); err != nil {
		m.log.Warn().Err(err).Int("level", m.level).Msg("save session")
	}
}

func (m *Machine) position(i int) game.Position {
	spacing := m.tuning.CardSpacing
	if spacing <= 0 {
		spacing = 1
	}
	row, col := i/m.columns, i%m.columns
	return game.Position{
		X: (float64(col) - float64(m.columns-1)/2) * spacing,
		Y: (float64(m.rows-1)/2 - float64(row)) * spacing,
	}
}

type nopStore struct{}

func (nopStore) Save(save.Record) error           { return nil }
func (nopStore) Load() (save.Record, error)       { return save.Record{}, save.ErrNoSave }
func (nopStore) LoadLegacy() (save.Legacy, error) { return save.Legacy{}, save.ErrNoSave }
func (nopStore) Clear() error                     { return nil }
