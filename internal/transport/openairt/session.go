package openairt

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/user/voiceline/internal/transport"
)

const defaultConnectTimeout = 15 * time.Second

// Config carries the connection settings shared by all sessions a factory
// opens.
type Config struct {
	// BaseURL is the realtime websocket endpoint, e.g.
	// "wss://api.openai.com/v1/realtime".
	BaseURL string
	Model   string
	APIKey  string
}

// Factory opens one realtime websocket session per call.
type Factory struct {
	cfg Config
}

// NewFactory creates a session factory for the given endpoint.
func NewFactory(cfg Config) *Factory {
	return &Factory{cfg: cfg}
}

// NewSession returns an unconnected session configured for one call.
func (f *Factory) NewSession(params transport.SessionParams) transport.Session {
	return &Session{cfg: f.cfg, params: params}
}

// Session speaks the realtime websocket protocol: a session.update frame
// configures instructions, voice, and server-side turn detection; text
// transcripts stream back as conversation events. Only the subset the
// lifecycle core needs is implemented here.
type Session struct {
	cfg    Config
	params transport.SessionParams

	conn    *websocket.Conn
	handler transport.Handler

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
	done      chan struct{}
}

// clientEvent is the envelope for frames sent to the server.
type clientEvent struct {
	Type     string           `json:"type"`
	Session  *sessionSettings `json:"session,omitempty"`
	Response *responseParams  `json:"response,omitempty"`
}

type sessionSettings struct {
	Instructions  string         `json:"instructions,omitempty"`
	Voice         string         `json:"voice,omitempty"`
	Temperature   float64        `json:"temperature,omitempty"`
	Modalities    []string       `json:"modalities,omitempty"`
	TurnDetection *turnDetection `json:"turn_detection,omitempty"`
}

type turnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms"`
	SilenceDurationMS int     `json:"silence_duration_ms"`
	CreateResponse    bool    `json:"create_response"`
}

type responseParams struct {
	Instructions string `json:"instructions,omitempty"`
}

// serverEvent is the decoded envelope for frames received from the server.
type serverEvent struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript,omitempty"`
	Item       *struct {
		Role    string `json:"role"`
		Content []struct {
			Type       string `json:"type"`
			Transcript string `json:"transcript,omitempty"`
			Text       string `json:"text,omitempty"`
		} `json:"content"`
	} `json:"item,omitempty"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Start dials the endpoint, applies the session settings, and begins the
// read loop. The room name is forwarded as a header so the gateway can
// correlate media.
func (s *Session) Start(ctx context.Context, room string, handler transport.Handler) error {
	s.handler = handler

	dialer := websocket.Dialer{HandshakeTimeout: defaultConnectTimeout}
	header := http.Header{}
	if s.cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}
	header.Set("X-Room-Name", room)

	url := s.cfg.BaseURL
	if s.cfg.Model != "" {
		url += "?model=" + s.cfg.Model
	}

	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return transport.TransportError("dial", err)
	}
	s.conn = conn

	update := clientEvent{
		Type: "session.update",
		Session: &sessionSettings{
			Instructions: s.params.Instructions,
			Voice:        s.params.Voice,
			Temperature:  s.params.Temperature,
			Modalities:   []string{"text", "audio"},
			TurnDetection: &turnDetection{
				Type:              "server_vad",
				Threshold:         0.5,
				PrefixPaddingMS:   300,
				SilenceDurationMS: 500,
				CreateResponse:    true,
			},
		},
	}
	if err := s.sendJSON(update); err != nil {
		_ = s.Close()
		return transport.TransportError("session.update", err)
	}

	s.done = make(chan struct{})
	go s.readLoop()
	return nil
}

// GenerateReply requests one spoken response following the given one-off
// instructions.
func (s *Session) GenerateReply(_ context.Context, instructions string) error {
	event := clientEvent{
		Type:     "response.create",
		Response: &responseParams{Instructions: instructions},
	}
	if err := s.sendJSON(event); err != nil {
		return transport.TransportError("response.create", err)
	}
	return nil
}

func (s *Session) sendJSON(v any) error {
	if s.closed.Load() {
		return transport.ErrTransport
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

// Close shuts the websocket down. Safe to call more than once and before
// Start (a session that never connected closes as a no-op).
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.conn == nil {
			return
		}
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(2*time.Second))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
	if s.done != nil {
		<-s.done
	}
	return nil
}

func (s *Session) readLoop() {
	defer close(s.done)
	defer func() {
		if s.handler != nil && !s.closed.Load() {
			s.handler.OnDisconnect()
		}
	}()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closed.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("realtime session read failed", "error", err)
			}
			return
		}

		var event serverEvent
		if err := json.Unmarshal(data, &event); err != nil {
			slog.Warn("realtime session frame undecodable", "error", err)
			continue
		}
		s.dispatch(&event)
	}
}

// dispatch routes decoded server events to the handler. User turns arrive as
// completed input transcriptions; agent turns as finished responses.
func (s *Session) dispatch(event *serverEvent) {
	switch event.Type {
	case "conversation.item.input_audio_transcription.completed":
		if event.Transcript != "" {
			s.handler.OnUserTurn(event.Transcript)
		}
	case "response.audio_transcript.done":
		if event.Transcript != "" {
			s.handler.OnAgentTurn(event.Transcript)
		}
	case "conversation.item.created":
		// Text-mode items carry their transcript inline.
		if event.Item == nil {
			return
		}
		text := ""
		for _, part := range event.Item.Content {
			if part.Text != "" {
				text = part.Text
			} else if part.Transcript != "" {
				text = part.Transcript
			}
		}
		if text == "" {
			return
		}
		switch event.Item.Role {
		case "user":
			s.handler.OnUserTurn(text)
		case "assistant":
			s.handler.OnAgentTurn(text)
		}
	case "error":
		if event.Error != nil {
			slog.Warn("realtime session error event", "message", event.Error.Message)
		}
	}
}
