package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/user/voiceline/internal/configcache"
	"github.com/user/voiceline/internal/controller"
	"github.com/user/voiceline/internal/registry"
	"github.com/user/voiceline/internal/transport"
	"github.com/user/voiceline/internal/types"
)

type stubTransport struct {
	startErr error
	closes   atomic.Int32
}

func (s *stubTransport) Start(context.Context, string, transport.Handler) error { return s.startErr }
func (s *stubTransport) GenerateReply(context.Context, string) error            { return nil }
func (s *stubTransport) Close() error                                           { s.closes.Add(1); return nil }

type stubFactory struct {
	startErr error
}

func (f *stubFactory) NewSession(transport.SessionParams) transport.Session {
	return &stubTransport{startErr: f.startErr}
}

type stubAgents struct{}

func (stubAgents) GetAgent(context.Context, types.AgentID) (*types.AgentConfig, bool, error) {
	return nil, false, nil
}

type stubKnowledge struct{}

func (stubKnowledge) ListKnowledge(context.Context, types.AgentID) ([]types.KnowledgeEntry, error) {
	return nil, nil
}

type stubAnalytics struct{}

func (stubAnalytics) Put(context.Context, *types.SessionRecord) error { return nil }

type stubSink struct{}

func (stubSink) Submit(types.SummaryJob) {}

func setupServer(t *testing.T, factory transport.Factory) (*Server, *registry.Registry) {
	t.Helper()
	cache, err := configcache.New(configcache.DriverMemory)
	if err != nil {
		t.Fatal(err)
	}
	reg := registry.New()
	ctrl := controller.New(controller.Params{
		Registry:  reg,
		Cache:     cache,
		Agents:    stubAgents{},
		Knowledge: stubKnowledge{},
		Analytics: stubAnalytics{},
		Summaries: stubSink{},
		Transport: factory,

		ReminderAfter: time.Hour,
		EndCallAfter:  2 * time.Hour,
		WatchInterval: time.Second,
		SettleDelay:   time.Millisecond,
	})
	t.Cleanup(ctrl.Shutdown)
	return NewServer(ctrl, reg), reg
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := setupServer(t, &stubFactory{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %s", resp["status"])
	}
}

func TestJoinedCreatesSession(t *testing.T) {
	srv, reg := setupServer(t, &stubFactory{})

	body := `{"room":"room-1","agent_id":"a1","call_id":"c1","language":"es"}`
	req := httptest.NewRequest(http.MethodPost, "/events/joined", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp["session_id"] != "room-1" {
		t.Errorf("expected session_id room-1, got %q", resp["session_id"])
	}
	if reg.Len() != 1 {
		t.Errorf("expected 1 registered session, got %d", reg.Len())
	}
}

func TestJoinedMissingRoom(t *testing.T) {
	srv, _ := setupServer(t, &stubFactory{})

	req := httptest.NewRequest(http.MethodPost, "/events/joined", strings.NewReader(`{"agent_id":"a1"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
}

func TestJoinedDuplicateConflict(t *testing.T) {
	srv, _ := setupServer(t, &stubFactory{})

	body := `{"room":"room-1"}`
	for i, want := range []int{http.StatusOK, http.StatusConflict} {
		req := httptest.NewRequest(http.MethodPost, "/events/joined", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, req)
		if w.Code != want {
			t.Fatalf("request %d: expected status %d, got %d", i, want, w.Code)
		}
	}
}

func TestJoinedTransportFailure(t *testing.T) {
	srv, reg := setupServer(t, &stubFactory{startErr: context.DeadlineExceeded})

	req := httptest.NewRequest(http.MethodPost, "/events/joined", strings.NewReader(`{"room":"room-1"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", w.Code)
	}
	if reg.Len() != 0 {
		t.Errorf("expected no registered session after failed start, got %d", reg.Len())
	}
}

func TestLeftFinalizesSession(t *testing.T) {
	srv, reg := setupServer(t, &stubFactory{})

	join := httptest.NewRequest(http.MethodPost, "/events/joined", strings.NewReader(`{"room":"room-1"}`))
	srv.ServeHTTP(httptest.NewRecorder(), join)

	req := httptest.NewRequest(http.MethodPost, "/events/left", strings.NewReader(`{"room":"room-1"}`))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "finalized" {
		t.Errorf("expected finalized, got %q", resp["status"])
	}
	if reg.Len() != 0 {
		t.Errorf("expected session removed, got %d", reg.Len())
	}
}

func TestLeftUnknownRoomIsIdempotent(t *testing.T) {
	srv, _ := setupServer(t, &stubFactory{})

	req := httptest.NewRequest(http.MethodPost, "/events/left", strings.NewReader(`{"room":"ghost"}`))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "not active" {
		t.Errorf("expected not active, got %q", resp["status"])
	}
}

func TestAPISessionsList(t *testing.T) {
	srv, _ := setupServer(t, &stubFactory{})

	join := httptest.NewRequest(http.MethodPost, "/events/joined",
		strings.NewReader(`{"room":"room-1","agent_id":"a1","call_id":"c1"}`))
	srv.ServeHTTP(httptest.NewRecorder(), join)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var result []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if len(result) != 1 {
		t.Fatalf("expected 1 session, got %d", len(result))
	}
	if result[0]["session_id"] != "room-1" {
		t.Errorf("expected session_id room-1, got %v", result[0]["session_id"])
	}
	if result[0]["agent_id"] != "a1" {
		t.Errorf("expected agent_id a1, got %v", result[0]["agent_id"])
	}
}
