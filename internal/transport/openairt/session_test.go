package openairt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/user/voiceline/internal/transport"
)

type recordingHandler struct {
	mu           sync.Mutex
	userTurns    []string
	agentTurns   []string
	disconnected bool
}

func (h *recordingHandler) OnUserTurn(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.userTurns = append(h.userTurns, text)
}

func (h *recordingHandler) OnAgentTurn(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.agentTurns = append(h.agentTurns, text)
}

func (h *recordingHandler) OnDisconnect() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnected = true
}

// fakeRealtime upgrades the connection, records inbound frames, and replays
// the given server events after the session.update arrives.
func fakeRealtime(t *testing.T, serverEvents []string, inbound chan<- map[string]any) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		replayed := false
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame map[string]any
			if err := json.Unmarshal(data, &frame); err != nil {
				t.Errorf("bad client frame: %v", err)
				return
			}
			inbound <- frame

			if !replayed && frame["type"] == "session.update" {
				replayed = true
				for _, ev := range serverEvents {
					if err := conn.WriteMessage(websocket.TextMessage, []byte(ev)); err != nil {
						return
					}
				}
			}
		}
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestStartSendsSessionUpdate(t *testing.T) {
	inbound := make(chan map[string]any, 10)
	server := fakeRealtime(t, nil, inbound)
	defer server.Close()

	factory := NewFactory(Config{BaseURL: wsURL(server), Model: "gpt-4o-realtime"})
	session := factory.NewSession(transport.SessionParams{
		Instructions: "Be brief.",
		Voice:        "sage",
		Temperature:  0.7,
	})
	handler := &recordingHandler{}

	if err := session.Start(context.Background(), "room-1", handler); err != nil {
		t.Fatal(err)
	}
	defer session.Close()

	select {
	case frame := <-inbound:
		if frame["type"] != "session.update" {
			t.Fatalf("expected session.update first, got %v", frame["type"])
		}
		settings, ok := frame["session"].(map[string]any)
		if !ok {
			t.Fatal("expected session settings payload")
		}
		if settings["voice"] != "sage" {
			t.Errorf("expected voice sage, got %v", settings["voice"])
		}
		if settings["instructions"] != "Be brief." {
			t.Errorf("unexpected instructions: %v", settings["instructions"])
		}
	case <-time.After(time.Second):
		t.Fatal("no session.update received")
	}
}

func TestGenerateReply(t *testing.T) {
	inbound := make(chan map[string]any, 10)
	server := fakeRealtime(t, nil, inbound)
	defer server.Close()

	factory := NewFactory(Config{BaseURL: wsURL(server)})
	session := factory.NewSession(transport.SessionParams{})

	if err := session.Start(context.Background(), "room-1", &recordingHandler{}); err != nil {
		t.Fatal(err)
	}
	defer session.Close()
	<-inbound // session.update

	if err := session.GenerateReply(context.Background(), "Give a warm, brief greeting."); err != nil {
		t.Fatal(err)
	}

	select {
	case frame := <-inbound:
		if frame["type"] != "response.create" {
			t.Fatalf("expected response.create, got %v", frame["type"])
		}
		resp, _ := frame["response"].(map[string]any)
		if resp["instructions"] != "Give a warm, brief greeting." {
			t.Errorf("unexpected reply instructions: %v", resp["instructions"])
		}
	case <-time.After(time.Second):
		t.Fatal("no response.create received")
	}
}

func TestTurnCallbacks(t *testing.T) {
	events := []string{
		`{"type":"conversation.item.input_audio_transcription.completed","transcript":"hello there"}`,
		`{"type":"response.audio_transcript.done","transcript":"hi, how can I help?"}`,
	}
	inbound := make(chan map[string]any, 10)
	server := fakeRealtime(t, events, inbound)
	defer server.Close()

	factory := NewFactory(Config{BaseURL: wsURL(server)})
	session := factory.NewSession(transport.SessionParams{})
	handler := &recordingHandler{}

	if err := session.Start(context.Background(), "room-1", handler); err != nil {
		t.Fatal(err)
	}
	defer session.Close()

	deadline := time.After(time.Second)
	for {
		handler.mu.Lock()
		users, agents := len(handler.userTurns), len(handler.agentTurns)
		handler.mu.Unlock()
		if users == 1 && agents == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("callbacks not delivered: %d user, %d agent", users, agents)
		case <-time.After(10 * time.Millisecond):
		}
	}

	handler.mu.Lock()
	defer handler.mu.Unlock()
	if handler.userTurns[0] != "hello there" {
		t.Errorf("unexpected user turn: %q", handler.userTurns[0])
	}
	if handler.agentTurns[0] != "hi, how can I help?" {
		t.Errorf("unexpected agent turn: %q", handler.agentTurns[0])
	}
}

func TestDialFailureIsTransportError(t *testing.T) {
	factory := NewFactory(Config{BaseURL: "ws://127.0.0.1:1"})
	session := factory.NewSession(transport.SessionParams{})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := session.Start(ctx, "room-1", &recordingHandler{})
	if err == nil {
		t.Fatal("expected dial failure")
	}
	if !errors.Is(err, transport.ErrTransport) {
		t.Errorf("expected transport error, got %v", err)
	}
	// Close after a failed Start must not panic.
	if err := session.Close(); err != nil {
		t.Errorf("close after failed start: %v", err)
	}
}
