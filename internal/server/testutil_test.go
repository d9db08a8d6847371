package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"memorymatch/internal/difficulty"
	"memorymatch/internal/game"
	"memorymatch/internal/game/memory"
	"memorymatch/internal/session"
	"memorymatch/internal/storage"
)

// --- Test environment ---

type testEnv struct {
	ts  *httptest.Server
	mgr *session.Manager
}

func testMode() game.Mode {
	return game.Mode{
		Name:        "tiny",
		Description: "2x2 forever",
		Tuning: game.Tuning{
			Start: difficulty.Start{Rows: 2, Columns: 2, Preview: time.Second, Mismatch: 500 * time.Millisecond},
			Curve: difficulty.Curve{
				SizeIncreaseEveryLevels: 1,
				MaxRows:                 2,
				MaxColumns:              2,
				BaseMovesPerPair:        3,
			},
			ScorePerMatch:      5,
			ComboBonusPerMatch: 2,
			ComboDisplayTime:   time.Second,
			LevelCompleteDelay: time.Second,
			LevelFailedDelay:   time.Second,
			CardSpacing:        1,
			Faces:              []string{"a", "b"},
		},
	}
}

func setupTestEnv(t *testing.T) *testEnv {
	return setupTestEnvTTL(t, time.Hour)
}

func setupTestEnvTTL(t *testing.T, ttl time.Duration) *testEnv {
	t.Helper()
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	reg := game.NewRegistry()
	reg.Register(testMode())
	mgr := session.NewManager(reg, store, nil, zerolog.Nop())

	srv := New(reg, mgr, Options{Secret: []byte("test-secret"), TokenTTL: ttl, Logger: zerolog.Nop()})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, mgr: mgr}
}

// --- Context helpers ---

func timeoutCtx(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// --- REST API helpers ---

// doJSON sends body as JSON with an optional bearer token.
func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("%s %s: expected %d, got %d", resp.Request.Method, resp.Request.URL.Path, want, resp.StatusCode)
	}
}

func createProfileViaAPI(t *testing.T, ts *httptest.Server, name string) createProfileResponse {
	t.Helper()
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/profiles", "", createProfileRequest{Name: name})
	expectStatus(t, resp, http.StatusCreated)
	return decode[createProfileResponse](t, resp)
}

func openSessionViaAPI(t *testing.T, ts *httptest.Server, p createProfileResponse) string {
	t.Helper()
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/profiles/"+p.ProfileID+"/session", p.Token, nil)
	expectStatus(t, resp, http.StatusOK)
	return decode[openSessionResponse](t, resp).Code
}

func tapViaAPI(t *testing.T, ts *httptest.Server, code string, index int) tapResponse {
	t.Helper()
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/sessions/"+code+"/tap", "", map[string]int{"index": index})
	expectStatus(t, resp, http.StatusOK)
	return decode[tapResponse](t, resp)
}

func stateViaAPI(t *testing.T, ts *httptest.Server, code string) memory.State {
	t.Helper()
	resp := doJSON(t, http.MethodGet, ts.URL+"/api/sessions/"+code, "", nil)
	expectStatus(t, resp, http.StatusOK)
	return decode[sessionResponse](t, resp).State
}

// playLevel clears the current level the way a player with perfect memory
// would, ticking through flip-back delays.
func playLevel(t *testing.T, env *testEnv, code string) memory.State {
	t.Helper()
	seen := map[int]int{} // card index -> face
	st := stateViaAPI(t, env.ts, code)
	for st.Phase == memory.PhasePlaying {
		first := pickCard(st, seen, -1)
		tr := tapViaAPI(t, env.ts, code, first)
		if !tr.Accepted {
			t.Fatalf("tap %d rejected in %s", first, tr.State.Phase)
		}
		face := tr.State.Cards[first].FaceIndex
		seen[first] = face

		second := -1
		for i, f := range seen {
			if i != first && f == face && !tr.State.Cards[i].Matched {
				second = i
			}
		}
		if second < 0 {
			second = pickCard(tr.State, seen, first)
		}
		tr = tapViaAPI(t, env.ts, code, second)
		seen[second] = tr.State.Cards[second].FaceIndex
		if tr.State.Phase == memory.PhaseResolving {
			env.mgr.Tick(mismatchWait)
		}
		st = stateViaAPI(t, env.ts, code)
	}
	return st
}

const mismatchWait = 500 * time.Millisecond

// pickCard returns the first hidden card not yet seen, or any hidden card
// other than skip.
func pickCard(st memory.State, seen map[int]int, skip int) int {
	fallback := -1
	for i, c := range st.Cards {
		if c.Matched || c.Revealed || i == skip {
			continue
		}
		if _, ok := seen[i]; !ok {
			return i
		}
		if fallback < 0 {
			fallback = i
		}
	}
	return fallback
}

// --- WebSocket helpers ---

func wsURL(ts *httptest.Server, code string) string {
	return strings.Replace(ts.URL, "http://", "ws://", 1) + "/api/sessions/" + code + "/ws"
}

// wsConnect dials a session WebSocket and consumes the initial state.
// The caller is responsible for closing the connection.
func wsConnect(t *testing.T, ts *httptest.Server, code string) *websocket.Conn {
	t.Helper()
	ctx, cancel := timeoutCtx(t)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL(ts, code), nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	if msg := wsRead(ctx, t, conn); msg.Type != session.MsgState {
		t.Fatalf("expected initial state, got %s", msg.Type)
	}
	return conn
}

// wsSend marshals and sends a typed WebSocket message, calling t.Fatal on error.
func wsSend(ctx context.Context, t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	p, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	data, err := json.Marshal(WSMessage{Type: msgType, Payload: p})
	if err != nil {
		t.Fatalf("marshal ws message: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("ws write: %v", err)
	}
}

// wsRead reads and unmarshals a WebSocket message, calling t.Fatal on error.
func wsRead(ctx context.Context, t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("ws read: %v", err)
	}
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal ws message: %v", err)
	}
	return msg
}

// readUntil reads messages until one of type msgType arrives and returns
// it along with every message type seen on the way.
func readUntil(ctx context.Context, t *testing.T, conn *websocket.Conn, msgType string) (WSMessage, []string) {
	t.Helper()
	var seen []string
	for {
		msg := wsRead(ctx, t, conn)
		seen = append(seen, msg.Type)
		if msg.Type == msgType {
			return msg, seen
		}
	}
}

// readError reads a WebSocket message and expects it to be an "error" message.
func readError(t *testing.T, ctx context.Context, conn *websocket.Conn) string {
	t.Helper()
	msg := wsRead(ctx, t, conn)
	if msg.Type != session.MsgError {
		t.Fatalf("expected error message, got %q: %s", msg.Type, string(msg.Payload))
	}
	var ep errorPayload
	if err := json.Unmarshal(msg.Payload, &ep); err != nil {
		t.Fatalf("unmarshal error payload: %v", err)
	}
	return ep.Message
}
