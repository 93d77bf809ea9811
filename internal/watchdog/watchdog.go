// internal/watchdog/watchdog.go
package watchdog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/user/voiceline/internal/types"
)

const (
	DefaultReminderAfter = 20 * time.Second
	DefaultEndCallAfter  = 40 * time.Second
	DefaultInterval      = 1 * time.Second
)

// reminderInstructions is sent through the transport session when the user
// has been silent past the reminder threshold.
const reminderInstructions = "Ask if the user is still there (one short sentence)."

// Watchdog enforces the two-stage inactivity policy for one session: a
// reminder after ReminderAfter of silence, then forced termination after
// EndCallAfter. User activity resets both stages.
type Watchdog struct {
	sessionID types.SessionID

	// Remind sends the inactivity nudge through the transport session.
	// Failures are logged and swallowed.
	Remind func(ctx context.Context, instructions string) error
	// Expire triggers finalize. Called at most once, after which the loop
	// exits.
	Expire func()

	ReminderAfter time.Duration
	EndCallAfter  time.Duration
	Interval      time.Duration

	mu           sync.Mutex
	lastActivity time.Time
	reminderSent bool
	active       bool
	stopped      chan struct{}
	now          func() time.Time
}

// New creates a Watchdog for the session with default thresholds. The caller
// wires Remind and Expire before Run.
func New(sessionID types.SessionID) *Watchdog {
	return &Watchdog{
		sessionID:     sessionID,
		ReminderAfter: DefaultReminderAfter,
		EndCallAfter:  DefaultEndCallAfter,
		Interval:      DefaultInterval,
		lastActivity:  time.Now(),
		active:        true,
		stopped:       make(chan struct{}),
		now:           time.Now,
	}
}

// Touch records user activity: the silence clock restarts and a pending
// reminder cycle is cleared so a later episode can nudge again.
func (w *Watchdog) Touch() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastActivity = w.now()
	w.reminderSent = false
}

// Stop deactivates the watchdog. The first call wins; the loop observes the
// flag at the top of its next iteration and exits without further side
// effects.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.active {
		return
	}
	w.active = false
	close(w.stopped)
}

// Active reports whether the watchdog has not been stopped yet.
func (w *Watchdog) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// Run drives the periodic inactivity check until the session ends. It exits
// on Stop, on context cancellation (a clean exit, not an error), or after
// firing Expire.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopped:
			return
		case <-ticker.C:
		}

		// Re-check after waking: the session may have been torn down via
		// the disconnect path while we slept.
		if !w.Active() {
			return
		}

		elapsed, remind := w.observe()

		if remind {
			slog.Info("inactivity reminder", "session_id", string(w.sessionID), "silence_seconds", elapsed.Seconds())
			if err := w.Remind(ctx, reminderInstructions); err != nil {
				slog.Warn("inactivity reminder failed", "session_id", string(w.sessionID), "error", err)
			}
		}

		if elapsed > w.EndCallAfter {
			if !w.Active() {
				return
			}
			slog.Info("inactivity timeout, ending session", "session_id", string(w.sessionID), "silence_seconds", elapsed.Seconds())
			w.Expire()
			return
		}
	}
}

// observe reads the elapsed silence and claims the reminder slot if due. The
// claim happens unconditionally before the send attempt, so a failed send
// still counts as the episode's one reminder.
func (w *Watchdog) observe() (time.Duration, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	elapsed := w.now().Sub(w.lastActivity)
	if elapsed > w.ReminderAfter && !w.reminderSent && w.active {
		w.reminderSent = true
		return elapsed, true
	}
	return elapsed, false
}
