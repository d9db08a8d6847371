package memory

import (
	"fmt"

	"memorymatch/internal/deck"
	"memorymatch/internal/game"
	"memorymatch/internal/save"
)

// State is a read-only copy of the session for transports and tests.
// Hidden cards do not expose their face.
type State struct {
	Phase         Phase           `json:"phase"`
	Busy          bool            `json:"busy"`
	LevelIndex    int             `json:"levelIndex"`
	Score         int             `json:"score"`
	TotalScore    int             `json:"totalScore"`
	MovesUsed     int             `json:"movesUsed"`
	MovesLimit    int             `json:"movesLimit"`
	ComboStreak   int             `json:"comboStreak"`
	ComboVisible  bool            `json:"comboVisible"`
	Rows          int             `json:"rows"`
	Columns       int             `json:"columns"`
	PreviewTime   float64         `json:"previewTime"`
	MismatchDelay float64         `json:"mismatchDelay"`
	MatchedCount  int             `json:"matchedCount"`
	First         int             `json:"first"`
	Second        int             `json:"second"`
	Cards         []game.CardView `json:"cards"`
	Error         string          `json:"error,omitempty"`
}

// State returns a snapshot of the session.
func (m *Machine) State() State {
	st := State{
		Phase:         m.phase,
		Busy:          m.busy,
		LevelIndex:    m.level,
		Score:         m.score,
		TotalScore:    m.totalScore,
		MovesUsed:     m.movesUsed,
		MovesLimit:    m.movesLimit,
		ComboStreak:   m.combo,
		ComboVisible:  m.comboShown,
		Rows:          m.rows,
		Columns:       m.columns,
		PreviewTime:   save.Seconds(m.previewTime),
		MismatchDelay: save.Seconds(m.mismatchDelay),
		MatchedCount:  m.matched,
		First:         m.first,
		Second:        m.second,
		Cards:         m.visibleCards(),
	}
	if m.err != nil {
		st.Error = m.err.Error()
	}
	return st
}

// Cards returns a copy of the live cards, faces included.
func (m *Machine) Cards() []Card {
	return append([]Card(nil), m.cards...)
}

func (m *Machine) cardView(i int, showFace bool) game.CardView {
	c := m.cards[i]
	v := game.CardView{
		Index:     i,
		FaceIndex: -1,
		Revealed:  c.Revealed,
		Matched:   c.Matched,
		Position:  c.Position,
	}
	if showFace || c.Revealed || c.Matched {
		v.FaceIndex = c.FaceIndex
		if c.FaceIndex >= 0 && c.FaceIndex < len(m.tuning.Faces) {
			v.Face = m.tuning.Faces[c.FaceIndex]
		}
	}
	return v
}

// visibleCards is what a player sees right now: every face during Preview,
// otherwise only revealed and matched cards.
func (m *Machine) visibleCards() []game.CardView {
	if m.phase != PhasePreview {
		return m.cardViews()
	}
	views := make([]game.CardView, len(m.cards))
	for i := range m.cards {
		views[i] = m.cardView(i, true)
		views[i].Revealed = true
	}
	return views
}

func (m *Machine) cardViews() []game.CardView {
	views := make([]game.CardView, len(m.cards))
	for i := range m.cards {
		views[i] = m.cardView(i, false)
	}
	return views
}

// record snapshots the session. Preview reveals are presentational, so a
// record taken during preview holds hidden cards and asks for a replay.
func (m *Machine) record() save.Record {
	r := save.Record{
		Version:        save.SchemaVersion,
		LevelIndex:     m.level,
		Score:          m.score,
		TotalScore:     m.totalScore,
		MovesUsed:      m.movesUsed,
		MovesLimit:     m.movesLimit,
		ComboStreak:    m.combo,
		Rows:           m.rows,
		Columns:        m.columns,
		PreviewTime:    save.Seconds(m.previewTime),
		MismatchDelay:  save.Seconds(m.mismatchDelay),
		PreviewPending: m.phase == PhasePreview,
		Cards:          make([]save.Card, len(m.cards)),
	}
	for i, c := range m.cards {
		r.Cards[i] = save.Card{
			CardID:    c.CardID,
			FaceIndex: c.FaceIndex,
			Matched:   c.Matched,
			Revealed:  c.Revealed,
			Position:  save.Position{X: c.Position.X, Y: c.Position.Y},
		}
	}
	return r
}

// restore replays a saved record exactly. On error the machine is left
// untouched.
func (m *Machine) restore(r save.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	var pending []int
	cards := make([]Card, len(r.Cards))
	matched := 0
	for i, c := range r.Cards {
		if c.FaceIndex < 0 || c.FaceIndex >= len(m.tuning.Faces) {
			return fmt.Errorf("%w: face %d outside pool of %d", save.ErrCorruptSaveRecord, c.FaceIndex, len(m.tuning.Faces))
		}
		cards[i] = Card{
			Descriptor: deck.Descriptor{CardID: c.CardID, FaceIndex: c.FaceIndex},
			Revealed:   c.Revealed,
			Matched:    c.Matched,
			Position:   game.Position{X: c.Position.X, Y: c.Position.Y},
		}
		switch {
		case c.Matched:
			matched++
		case c.Revealed:
			pending = append(pending, i)
		}
	}
	if len(pending) > 2 {
		return fmt.Errorf("%w: %d unresolved cards", save.ErrCorruptSaveRecord, len(pending))
	}
	if r.PreviewPending {
		for i := range cards {
			if !cards[i].Matched {
				cards[i].Revealed = false
			}
		}
		pending = nil
	}

	m.sched.CancelAll()
	if m.comboShown {
		m.comboShown = false
		m.view.HideCombo()
	}
	m.err = nil
	m.level = r.LevelIndex
	m.score = r.Score
	m.totalScore = r.TotalScore
	m.movesUsed = r.MovesUsed
	m.movesLimit = r.MovesLimit
	m.combo = r.ComboStreak
	m.rows, m.columns = r.Rows, r.Columns
	m.previewTime = save.Duration(r.PreviewTime)
	m.mismatchDelay = save.Duration(r.MismatchDelay)
	m.cards = cards
	m.matched = matched
	m.first, m.second = -1, -1

	m.view.Layout(m.level, m.rows, m.columns, m.cardViews())
	for i, c := range m.cards {
		switch {
		case c.Matched:
			m.view.Match(m.cardView(i, true))
			m.view.SetInteractable(i, false)
		case c.Revealed:
			m.view.Reveal(m.cardView(i, true))
			m.view.SetInteractable(i, true)
		default:
			m.view.SetInteractable(i, true)
		}
	}

	if r.PreviewPending {
		m.enterPreview()
		return nil
	}

	switch len(pending) {
	case 2:
		// the move for this pair was charged before suspension
		m.first, m.second = pending[0], pending[1]
		m.phase = PhaseResolving
		m.busy = true
		m.resolve()
		return nil
	case 1:
		m.first = pending[0]
	}
	m.settle()
	return nil
}
