package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"memorymatch/internal/clock"
	"memorymatch/internal/game"
	"memorymatch/internal/game/memory"
)

// Outbound message types.
const (
	MsgState   = "state"
	MsgCommand = "command"
	MsgCue     = "cue"
	MsgError   = "error"
)

// Message is the JSON envelope pushed to viewers.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Command is one presenter instruction.
type Command struct {
	Op      string          `json:"op"`
	Card    *game.CardView  `json:"card,omitempty"`
	Index   *int            `json:"index,omitempty"`
	On      *bool           `json:"on,omitempty"`
	Level   int             `json:"level,omitempty"`
	Rows    int             `json:"rows,omitempty"`
	Columns int             `json:"columns,omitempty"`
	Cards   []game.CardView `json:"cards,omitempty"`
	Streak  int             `json:"streak,omitempty"`
}

// CuePayload names a fired cue.
type CuePayload struct {
	Cue string `json:"cue"`
}

// Viewer is a connected client.
type Viewer struct {
	ID   string
	Send chan []byte // outbound messages
}

// Session is one profile's live game. It drives a memory.Machine and acts
// as its presenter and cue sink, fanning both out to viewers.
type Session struct {
	Code      string
	ProfileID string
	Mode      string

	mu         sync.Mutex // guards machine, sched, dirty, lastActive
	machine    *memory.Machine
	sched      *clock.Scheduler
	dirty      bool
	lastActive time.Time

	vmu     sync.RWMutex
	viewers map[string]*Viewer

	local game.Cue
	log   zerolog.Logger
}

// Info summarizes a session for the API.
type Info struct {
	Code      string       `json:"code"`
	ProfileID string       `json:"profileId"`
	Mode      string       `json:"mode"`
	Phase     memory.Phase `json:"phase"`
	Level     int          `json:"level"`
	Viewers   int          `json:"viewers"`
}

// Start deals or resumes and pushes the resulting state.
func (s *Session) Start() error {
	s.mu.Lock()
	err := s.machine.Start()
	s.lastActive = time.Now()
	st := s.flushLocked()
	s.mu.Unlock()
	s.broadcastState(st)
	return err
}

// Tap forwards a tap and returns whether it was accepted plus the new state.
func (s *Session) Tap(index int) (bool, memory.State) {
	s.mu.Lock()
	ok := s.machine.Tap(index)
	s.lastActive = time.Now()
	st := s.flushLocked()
	s.mu.Unlock()
	if ok {
		s.broadcastState(st)
	}
	return ok, st
}

// Advance moves the session clock by dt and pushes state if anything fired.
func (s *Session) Advance(dt time.Duration) {
	s.mu.Lock()
	s.sched.Advance(dt)
	changed := s.dirty
	st := s.flushLocked()
	s.mu.Unlock()
	if changed {
		s.broadcastState(st)
	}
}

// Suspend persists the session.
func (s *Session) Suspend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Suspend()
}

// Restart deals the current level again.
func (s *Session) Restart() error {
	return s.mutate(s.machine.Restart)
}

// Reset wipes saved progress and starts from level zero.
func (s *Session) Reset() error {
	return s.mutate(s.machine.Reset)
}

func (s *Session) mutate(fn func() error) error {
	s.mu.Lock()
	err := fn()
	s.lastActive = time.Now()
	st := s.flushLocked()
	s.mu.Unlock()
	s.broadcastState(st)
	return err
}

// State returns a snapshot of the machine.
func (s *Session) State() memory.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.State()
}

// flushLocked clears the dirty flag and returns the state to push.
func (s *Session) flushLocked() memory.State {
	s.dirty = false
	return s.machine.State()
}

// LastActive returns the time of the last player action or connection.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Info returns session info for the API.
func (s *Session) Info() Info {
	st := s.State()
	return Info{
		Code:      s.Code,
		ProfileID: s.ProfileID,
		Mode:      s.Mode,
		Phase:     st.Phase,
		Level:     st.LevelIndex,
		Viewers:   s.ViewerCount(),
	}
}

// AddViewer registers a connection and sends it the current state.
func (s *Session) AddViewer(id string, buffer int) *Viewer {
	v := &Viewer{ID: id, Send: make(chan []byte, buffer)}
	s.vmu.Lock()
	if old, ok := s.viewers[id]; ok {
		close(old.Send)
	}
	s.viewers[id] = v
	s.vmu.Unlock()
	s.log.Debug().Str("viewer", id).Msg("viewer connected")

	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()

	st := s.State()
	select {
	case v.Send <- Encode(MsgState, st):
	default:
	}
	return v
}

// RemoveViewer drops a connection and closes its channel. Removing a
// viewer that was replaced by a newer one with the same id is a no-op.
func (s *Session) RemoveViewer(v *Viewer) {
	s.vmu.Lock()
	defer s.vmu.Unlock()
	if cur, ok := s.viewers[v.ID]; ok && cur == v {
		close(v.Send)
		delete(s.viewers, v.ID)
	}
}

// ViewerCount returns the number of connected viewers.
func (s *Session) ViewerCount() int {
	s.vmu.RLock()
	defer s.vmu.RUnlock()
	return len(s.viewers)
}

// closeViewers disconnects everyone.
func (s *Session) closeViewers() {
	s.vmu.Lock()
	defer s.vmu.Unlock()
	for id, v := range s.viewers {
		close(v.Send)
		delete(s.viewers, id)
	}
}

// Broadcast sends a message to all connected viewers.
func (s *Session) Broadcast(msg []byte) {
	s.vmu.RLock()
	defer s.vmu.RUnlock()
	for _, v := range s.viewers {
		select {
		case v.Send <- msg:
		default:
			// drop message if buffer full
		}
	}
}

func (s *Session) broadcastState(st memory.State) {
	s.Broadcast(Encode(MsgState, st))
}

// Encode wraps payload in a Message.
func Encode(msgType string, payload any) []byte {
	p, _ := json.Marshal(payload)
	msg, _ := json.Marshal(Message{Type: msgType, Payload: p})
	return msg
}

// The methods below run with s.mu held, from inside the machine.

func (s *Session) command(c Command) {
	s.dirty = true
	s.Broadcast(Encode(MsgCommand, c))
}

func (s *Session) Layout(level, rows, columns int, cards []game.CardView) {
	s.command(Command{Op: "layout", Level: level, Rows: rows, Columns: columns, Cards: cards})
}

func (s *Session) Reveal(card game.CardView) { s.command(Command{Op: "reveal", Card: &card}) }

func (s *Session) Hide(card int) { s.command(Command{Op: "hide", Index: &card}) }

func (s *Session) Match(card game.CardView) { s.command(Command{Op: "match", Card: &card}) }

func (s *Session) SetInteractable(card int, on bool) {
	s.command(Command{Op: "interactable", Index: &card, On: &on})
}

func (s *Session) ShowCombo(streak int) { s.command(Command{Op: "show_combo", Streak: streak}) }

func (s *Session) HideCombo() { s.command(Command{Op: "hide_combo"}) }

func (s *Session) cue(name string, play func(game.Cue)) {
	s.dirty = true
	s.Broadcast(Encode(MsgCue, CuePayload{Cue: name}))
	if s.local != nil {
		play(s.local)
	}
}

func (s *Session) OnTap()       { s.cue("tap", game.Cue.OnTap) }
func (s *Session) OnMatch()     { s.cue("match", game.Cue.OnMatch) }
func (s *Session) OnLevelWin()  { s.cue("level_win", game.Cue.OnLevelWin) }
func (s *Session) OnLevelLose() { s.cue("level_lose", game.Cue.OnLevelLose) }
