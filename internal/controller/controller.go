package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/user/voiceline/internal/configcache"
	"github.com/user/voiceline/internal/registry"
	"github.com/user/voiceline/internal/transport"
	"github.com/user/voiceline/internal/types"
	"github.com/user/voiceline/internal/watchdog"
)

const (
	defaultSettleDelay   = 300 * time.Millisecond
	finalizeWriteTimeout = 30 * time.Second
)

// Params wires a Controller to its collaborators and policy knobs.
type Params struct {
	Registry  *registry.Registry
	Cache     configcache.Cache
	Agents    types.AgentStore
	Knowledge types.KnowledgeStore
	Analytics types.AnalyticsStore
	Summaries types.SummarySink
	Transport transport.Factory

	BaseInstructions string
	DefaultVoice     string
	Temperature      float64

	ReminderAfter time.Duration
	EndCallAfter  time.Duration
	WatchInterval time.Duration
	SettleDelay   time.Duration
}

// Controller orchestrates the call-session lifecycle: creation, turn-event
// ingestion, inactivity policy, and the finalize/handoff protocol.
type Controller struct {
	params Params

	mu       sync.Mutex
	sessions map[types.SessionID]*Session
}

// Session is the live handle for one active call: the registry record plus
// the runtime pieces (transport session, watchdog) that do not belong in the
// serializable record.
type Session struct {
	id   types.SessionID
	ctrl *Controller

	transport transport.Session
	watchdog  *watchdog.Watchdog
	cancel    context.CancelFunc
	wdDone    chan struct{}

	finalizeOnce sync.Once
	cleanupOnce  sync.Once
}

// ID returns the session identifier.
func (s *Session) ID() types.SessionID { return s.id }

// New creates a Controller. Zero-valued policy knobs fall back to the
// package defaults.
func New(params Params) *Controller {
	if params.BaseInstructions == "" {
		params.BaseInstructions = DefaultInstructions
	}
	if params.DefaultVoice == "" {
		params.DefaultVoice = DefaultVoice
	}
	if params.Temperature == 0 {
		params.Temperature = 0.7
	}
	if params.ReminderAfter <= 0 {
		params.ReminderAfter = watchdog.DefaultReminderAfter
	}
	if params.EndCallAfter <= 0 {
		params.EndCallAfter = watchdog.DefaultEndCallAfter
	}
	if params.WatchInterval <= 0 {
		params.WatchInterval = watchdog.DefaultInterval
	}
	if params.SettleDelay <= 0 {
		params.SettleDelay = defaultSettleDelay
	}
	return &Controller{
		params:   params,
		sessions: make(map[types.SessionID]*Session),
	}
}

// StartSession creates a session for a joined participant: it resolves the
// agent configuration and knowledge augmentation, registers the record,
// opens the realtime transport session, issues the greeting, and attaches
// the inactivity watchdog. On any failure the partially-started session is
// torn down and no record is left registered.
func (c *Controller) StartSession(ctx context.Context, event types.JoinEvent) (*Session, error) {
	if event.Room == "" {
		return nil, fmt.Errorf("start session: room name is required")
	}

	sessionID := types.SessionID(event.Room)
	lang := event.Language
	if lang == "" {
		lang = "en"
	}
	callID := event.CallID
	if callID == "" {
		callID = types.CallID(sessionID)
	}

	cfg, kbText := c.loadAgentContext(ctx, event.AgentID)
	instructions := composeInstructions(c.params.BaseInstructions, cfg, kbText, lang)
	voice := voiceFor(cfg, c.params.DefaultVoice)

	record := &types.SessionRecord{
		SessionID:  sessionID,
		RoomName:   event.Room,
		AgentID:    event.AgentID,
		CallID:     callID,
		Language:   lang,
		ClientInfo: event.ClientInfo(),
		StartTime:  time.Now().UTC(),
	}
	if err := c.params.Registry.Create(record); err != nil {
		return nil, fmt.Errorf("start session %s: %w", sessionID, err)
	}

	ts := c.params.Transport.NewSession(transport.SessionParams{
		Instructions: instructions,
		Voice:        voice,
		Temperature:  c.params.Temperature,
	})

	session := &Session{
		id:        sessionID,
		ctrl:      c,
		transport: ts,
		watchdog:  watchdog.New(sessionID),
	}
	session.watchdog.ReminderAfter = c.params.ReminderAfter
	session.watchdog.EndCallAfter = c.params.EndCallAfter
	session.watchdog.Interval = c.params.WatchInterval

	c.mu.Lock()
	c.sessions[sessionID] = session
	c.mu.Unlock()

	if err := ts.Start(ctx, event.Room, session); err != nil {
		c.abortStart(session)
		return nil, fmt.Errorf("start session %s: %w", sessionID, err)
	}

	// Let the realtime pipeline settle before asking for speech.
	time.Sleep(c.params.SettleDelay)

	greeting := "Give a warm, brief greeting."
	if cfg != nil && cfg.GreetingMessage != "" {
		greeting = "Say: " + cfg.GreetingMessage
	}
	if err := ts.GenerateReply(ctx, greeting); err != nil {
		c.abortStart(session)
		return nil, fmt.Errorf("start session %s: greeting: %w", sessionID, err)
	}

	c.attachWatchdog(session)

	slog.Info("session started",
		"session_id", string(sessionID),
		"agent_id", string(event.AgentID),
		"call_id", string(callID),
		"language", lang,
		"voice", voice,
	)
	return session, nil
}

// loadAgentContext resolves the agent configuration (cache-checked) and the
// knowledge augmentation concurrently. Both fetches recover failures as
// absent: a session always starts, at worst with default instructions.
func (c *Controller) loadAgentContext(ctx context.Context, agentID types.AgentID) (*types.AgentConfig, string) {
	if agentID == "" {
		return nil, ""
	}

	var (
		cfg    *types.AgentConfig
		kbText string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cfg = c.fetchConfig(gctx, agentID)
		return nil
	})
	g.Go(func() error {
		entries, err := c.params.Knowledge.ListKnowledge(gctx, agentID)
		if err != nil {
			slog.Warn("knowledge fetch failed", "agent_id", string(agentID), "error", err)
			return nil
		}
		kbText = knowledgeText(entries)
		return nil
	})
	_ = g.Wait()

	return cfg, kbText
}

// fetchConfig returns the agent configuration from the cache, falling back
// to the remote store and refreshing the cache on a miss.
func (c *Controller) fetchConfig(ctx context.Context, agentID types.AgentID) *types.AgentConfig {
	if cfg, ok := c.params.Cache.Get(ctx, agentID); ok {
		slog.Debug("agent config from cache", "agent_id", string(agentID))
		return cfg
	}

	cfg, found, err := c.params.Agents.GetAgent(ctx, agentID)
	if err != nil {
		slog.Warn("agent config fetch failed", "agent_id", string(agentID), "error", err)
		return nil
	}
	if !found {
		return nil
	}
	c.params.Cache.Put(ctx, agentID, cfg)
	return cfg
}

// attachWatchdog wires the inactivity policy to the session and starts the
// watchdog loop.
func (c *Controller) attachWatchdog(session *Session) {
	wdCtx, cancel := context.WithCancel(context.Background())
	session.cancel = cancel
	session.wdDone = make(chan struct{})

	session.watchdog.Remind = session.transport.GenerateReply
	session.watchdog.Expire = func() {
		// Shutdown must not run on the watchdog goroutine itself: it waits
		// for the loop to exit.
		go session.Cleanup()
	}

	go func() {
		defer close(session.wdDone)
		session.watchdog.Run(wdCtx)
	}()
}

// abortStart is the best-effort teardown for a session that failed during
// creation: close whatever was opened, deregister the record.
func (c *Controller) abortStart(session *Session) {
	if err := session.transport.Close(); err != nil {
		slog.Warn("transport close during abort failed", "session_id", string(session.id), "error", err)
	}
	c.params.Registry.Remove(session.id)
	c.mu.Lock()
	delete(c.sessions, session.id)
	c.mu.Unlock()
}

// Session returns the live handle for an active session.
func (c *Controller) Session(id types.SessionID) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	session, ok := c.sessions[id]
	return session, ok
}

// OnUserTurn records a completed user utterance: transcript append, counter
// increment, watchdog reset. Empty text and finalized sessions are no-ops.
func (c *Controller) OnUserTurn(id types.SessionID, text string) {
	if text == "" {
		return
	}
	mutated := c.params.Registry.Mutate(id, func(r *types.SessionRecord) {
		r.UserTranscripts = append(r.UserTranscripts, types.TranscriptEntry{
			Text:      text,
			Timestamp: time.Now().UTC(),
			Source:    "user",
		})
		r.TotalUserMessages++
	})
	if !mutated {
		return
	}
	slog.Info("user turn", "session_id", string(id), "text", text)

	if session, ok := c.Session(id); ok {
		session.watchdog.Touch()
	}
}

// OnAgentTurn records a completed agent response. Agent speech does not
// count as user activity, so the watchdog is left alone.
func (c *Controller) OnAgentTurn(id types.SessionID, text string) {
	if text == "" {
		return
	}
	mutated := c.params.Registry.Mutate(id, func(r *types.SessionRecord) {
		r.AgentTranscripts = append(r.AgentTranscripts, types.TranscriptEntry{
			Text:      text,
			Timestamp: time.Now().UTC(),
			Source:    "agent",
		})
		r.TotalAgentResponses++
	})
	if mutated {
		slog.Info("agent turn", "session_id", string(id), "text", text)
	}
}

// OnUserTurn implements transport.Handler for the session's own callbacks.
func (s *Session) OnUserTurn(text string) { s.ctrl.OnUserTurn(s.id, text) }

// OnAgentTurn implements transport.Handler.
func (s *Session) OnAgentTurn(text string) { s.ctrl.OnAgentTurn(s.id, text) }

// OnDisconnect implements transport.Handler: a remote hangup runs the same
// shutdown path as the signaling framework's cleanup callback. Dispatched
// off the transport read goroutine so callbacks never block.
func (s *Session) OnDisconnect() { go s.Cleanup() }

// Cleanup is the shutdown hook for a session: it deactivates and awaits the
// watchdog, closes the transport session, and finalizes the record. Racing
// triggers (inactivity timeout vs. participant disconnect) converge here and
// on the finalize guard, so side effects run at most once.
func (s *Session) Cleanup() {
	s.cleanupOnce.Do(func() {
		slog.Info("cleaning up session", "session_id", string(s.id))

		s.watchdog.Stop()
		if s.cancel != nil {
			s.cancel()
		}
		if s.wdDone != nil {
			<-s.wdDone
		}

		if err := s.transport.Close(); err != nil {
			slog.Warn("transport close failed", "session_id", string(s.id), "error", err)
		}
	})
	s.Finalize()
}

// Finalize ends the session record exactly once: end time and duration are
// stamped, the record leaves the registry, and the persistence and
// summarization side effects are dispatched without ever blocking teardown.
func (s *Session) Finalize() {
	s.finalizeOnce.Do(func() {
		s.watchdog.Stop()

		s.ctrl.params.Registry.Mutate(s.id, func(r *types.SessionRecord) {
			now := time.Now().UTC()
			r.EndTime = &now
			// A zero start time means the clock data is unusable; leave the
			// duration absent rather than fail teardown.
			if !r.StartTime.IsZero() {
				d := now.Sub(r.StartTime).Seconds()
				r.DurationSeconds = &d
			}
		})

		record, ok := s.ctrl.params.Registry.Remove(s.id)

		s.ctrl.mu.Lock()
		delete(s.ctrl.sessions, s.id)
		s.ctrl.mu.Unlock()

		if !ok {
			return
		}
		s.ctrl.dispatchSideEffects(record)
	})
}

// dispatchSideEffects hands the finalized record to the analytics store and,
// when the identifiers and transcript allow, to the summarizer. Both are
// fire-and-forget with their own error boundaries.
func (c *Controller) dispatchSideEffects(record *types.SessionRecord) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), finalizeWriteTimeout)
		defer cancel()
		if err := c.params.Analytics.Put(ctx, record); err != nil {
			slog.Error("analytics write failed", "session_id", string(record.SessionID), "error", err)
			return
		}
		slog.Info("analytics saved", "session_id", string(record.SessionID))
	}()

	if record.AgentID == "" || record.CallID == "" {
		return
	}
	transcript := record.TranscriptText()
	if transcript == "" {
		return
	}
	c.params.Summaries.Submit(types.SummaryJob{
		AgentID:    record.AgentID,
		CallID:     record.CallID,
		Transcript: transcript,
		ClientInfo: record.ClientInfo,
	})
	slog.Info("summary dispatched", "session_id", string(record.SessionID), "call_id", string(record.CallID))
}

// Shutdown cleans up every active session. Used on daemon stop.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	sessions := make([]*Session, 0, len(c.sessions))
	for _, session := range c.sessions {
		sessions = append(sessions, session)
	}
	c.mu.Unlock()

	for _, session := range sessions {
		session.Cleanup()
	}
}
