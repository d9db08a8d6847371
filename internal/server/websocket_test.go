package server

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"memorymatch/internal/game/memory"
	"memorymatch/internal/session"
)

// openPlaying creates a profile, opens its session and ends the preview.
func openPlaying(t *testing.T, env *testEnv) string {
	t.Helper()
	p := createProfileViaAPI(t, env.ts, "alice")
	code := openSessionViaAPI(t, env.ts, p)
	env.mgr.Tick(time.Second)
	return code
}

func TestWSInitialState(t *testing.T) {
	env := setupTestEnv(t)
	p := createProfileViaAPI(t, env.ts, "alice")
	code := openSessionViaAPI(t, env.ts, p)

	ctx, cancel := timeoutCtx(t)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL(env.ts, code), nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	defer conn.CloseNow()

	msg := wsRead(ctx, t, conn)
	if msg.Type != session.MsgState {
		t.Fatalf("expected state, got %s", msg.Type)
	}
	var st memory.State
	if err := json.Unmarshal(msg.Payload, &st); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if st.Phase != memory.PhasePreview || len(st.Cards) != 4 {
		t.Fatalf("unexpected initial state %+v", st)
	}
}

func TestWSTapBroadcastsToAllViewers(t *testing.T) {
	env := setupTestEnv(t)
	code := openPlaying(t, env)

	a := wsConnect(t, env.ts, code)
	defer a.CloseNow()
	b := wsConnect(t, env.ts, code)
	defer b.CloseNow()

	ctx, cancel := timeoutCtx(t)
	defer cancel()
	wsSend(ctx, t, a, "tap", map[string]int{"index": 2})

	for name, conn := range map[string]*websocket.Conn{"a": a, "b": b} {
		msg, seen := readUntil(ctx, t, conn, session.MsgState)
		var st memory.State
		if err := json.Unmarshal(msg.Payload, &st); err != nil {
			t.Fatalf("%s: unmarshal state: %v", name, err)
		}
		if st.First != 2 || !st.Cards[2].Revealed {
			t.Fatalf("%s: expected card 2 revealed, got first=%d", name, st.First)
		}
		if strings.Join(seen, ",") != "cue,command,state" {
			t.Fatalf("%s: unexpected message order %v", name, seen)
		}
	}
}

func TestWSCommandPayload(t *testing.T) {
	env := setupTestEnv(t)
	code := openPlaying(t, env)
	conn := wsConnect(t, env.ts, code)
	defer conn.CloseNow()

	ctx, cancel := timeoutCtx(t)
	defer cancel()
	wsSend(ctx, t, conn, "tap", map[string]int{"index": 1})

	msg, _ := readUntil(ctx, t, conn, session.MsgCue)
	var cue session.CuePayload
	if err := json.Unmarshal(msg.Payload, &cue); err != nil {
		t.Fatalf("unmarshal cue: %v", err)
	}
	if cue.Cue != "tap" {
		t.Fatalf("expected tap cue, got %q", cue.Cue)
	}

	msg, _ = readUntil(ctx, t, conn, session.MsgCommand)
	var cmd session.Command
	if err := json.Unmarshal(msg.Payload, &cmd); err != nil {
		t.Fatalf("unmarshal command: %v", err)
	}
	if cmd.Op != "reveal" || cmd.Card == nil || cmd.Card.Index != 1 || cmd.Card.Face == "" {
		t.Fatalf("expected reveal of card 1 with its face, got %+v", cmd)
	}
}

func TestWSInvalidMessages(t *testing.T) {
	env := setupTestEnv(t)
	code := openPlaying(t, env)
	conn := wsConnect(t, env.ts, code)
	defer conn.CloseNow()

	ctx, cancel := timeoutCtx(t)
	defer cancel()

	if err := conn.Write(ctx, websocket.MessageText, []byte("not json")); err != nil {
		t.Fatalf("ws write: %v", err)
	}
	if msg := readError(t, ctx, conn); msg != "invalid message" {
		t.Fatalf("unexpected error %q", msg)
	}

	wsSend(ctx, t, conn, "fly", nil)
	if msg := readError(t, ctx, conn); !strings.Contains(msg, "unknown message type") {
		t.Fatalf("unexpected error %q", msg)
	}

	wsSend(ctx, t, conn, "tap", map[string]string{})
	if msg := readError(t, ctx, conn); msg != "invalid tap payload" {
		t.Fatalf("unexpected error %q", msg)
	}
}

func TestWSStateRequest(t *testing.T) {
	env := setupTestEnv(t)
	code := openPlaying(t, env)
	conn := wsConnect(t, env.ts, code)
	defer conn.CloseNow()

	ctx, cancel := timeoutCtx(t)
	defer cancel()
	wsSend(ctx, t, conn, "state", nil)

	msg := wsRead(ctx, t, conn)
	if msg.Type != session.MsgState {
		t.Fatalf("expected state, got %s", msg.Type)
	}
	var st memory.State
	if err := json.Unmarshal(msg.Payload, &st); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if st.Phase != memory.PhasePlaying {
		t.Fatalf("expected playing, got %s", st.Phase)
	}
}

func TestWSIgnoredTapIsSilent(t *testing.T) {
	env := setupTestEnv(t)
	p := createProfileViaAPI(t, env.ts, "alice")
	code := openSessionViaAPI(t, env.ts, p)
	conn := wsConnect(t, env.ts, code)
	defer conn.CloseNow()

	ctx, cancel := timeoutCtx(t)
	defer cancel()

	// still previewing, so the tap is dropped and the next reply is the state
	wsSend(ctx, t, conn, "tap", map[string]int{"index": 0})
	wsSend(ctx, t, conn, "state", nil)

	msg := wsRead(ctx, t, conn)
	if msg.Type != session.MsgState {
		t.Fatalf("expected state, got %s", msg.Type)
	}
	var st memory.State
	if err := json.Unmarshal(msg.Payload, &st); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if st.First != -1 {
		t.Fatalf("expected no selection, got %d", st.First)
	}
}

func TestWSUnknownSession(t *testing.T) {
	env := setupTestEnv(t)
	ctx, cancel := timeoutCtx(t)
	defer cancel()
	if _, _, err := websocket.Dial(ctx, wsURL(env.ts, "zzzzzz"), nil); err == nil {
		t.Fatal("expected dial to fail for unknown session")
	}
}

func TestWSClosedWhenSessionUnloaded(t *testing.T) {
	env := setupTestEnv(t)
	code := openPlaying(t, env)
	conn := wsConnect(t, env.ts, code)
	defer conn.CloseNow()

	if err := env.mgr.Close(code); err != nil {
		t.Fatalf("close session: %v", err)
	}

	ctx, cancel := timeoutCtx(t)
	defer cancel()
	_, _, err := conn.Read(ctx)
	if got := websocket.CloseStatus(err); got != websocket.StatusGoingAway {
		t.Fatalf("expected going away, got %v (%v)", got, err)
	}
}
