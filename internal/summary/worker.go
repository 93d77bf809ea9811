package summary

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/user/voiceline/internal/types"
)

// Summarizer generates a structured summary for one finished call.
type Summarizer interface {
	Summarize(ctx context.Context, job types.SummaryJob, knowledgeText string) (*types.CallSummary, error)
}

// Saver persists a generated summary and returns its object URL.
type Saver interface {
	Save(ctx context.Context, agentID types.AgentID, callID types.CallID, result *types.CallSummary) (string, error)
}

// Worker runs summary jobs on a bounded pool of background goroutines. It is
// the error boundary for the whole post-call pipeline: a failed job is
// logged, never propagated, so summarization can never stall session
// teardown or another session's watchdog.
type Worker struct {
	summarizer Summarizer
	saver      Saver
	knowledge  types.KnowledgeStore
	budget     *Budget

	sem     *semaphore.Weighted
	wg      sync.WaitGroup
	timeout time.Duration
}

// NewWorker creates a Worker allowing up to maxConcurrent jobs at once.
// knowledge and budget may be nil; jobs then run without knowledge context
// or transcript truncation.
func NewWorker(summarizer Summarizer, saver Saver, knowledge types.KnowledgeStore, budget *Budget, maxConcurrent int64) *Worker {
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	return &Worker{
		summarizer: summarizer,
		saver:      saver,
		knowledge:  knowledge,
		budget:     budget,
		sem:        semaphore.NewWeighted(maxConcurrent),
		timeout:    2 * time.Minute,
	}
}

// Submit queues a summary job. It returns immediately; the job runs on its
// own goroutine once a pool slot frees up.
func (w *Worker) Submit(job types.SummaryJob) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(job)
	}()
}

// Drain blocks until all submitted jobs have finished, or the timeout
// expires. Returns true when fully drained. Used on daemon shutdown.
func (w *Worker) Drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (w *Worker) run(job types.SummaryJob) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	if err := w.sem.Acquire(ctx, 1); err != nil {
		slog.Error("summary job timed out waiting for a slot", "agent_id", string(job.AgentID), "call_id", string(job.CallID))
		return
	}
	defer w.sem.Release(1)

	slog.Info("generating summary", "agent_id", string(job.AgentID), "call_id", string(job.CallID))

	transcript := job.Transcript
	if w.budget != nil {
		transcript = w.budget.Truncate(transcript)
	}
	job.Transcript = transcript

	result, err := w.summarizer.Summarize(ctx, job, w.knowledgeText(ctx, job.AgentID))
	if err != nil {
		slog.Error("summary generation failed", "agent_id", string(job.AgentID), "call_id", string(job.CallID), "error", err)
		return
	}

	url, err := w.saver.Save(ctx, job.AgentID, job.CallID, result)
	if err != nil {
		slog.Error("summary save failed", "agent_id", string(job.AgentID), "call_id", string(job.CallID), "error", err)
		return
	}
	slog.Info("summary stored", "agent_id", string(job.AgentID), "call_id", string(job.CallID), "url", url)
}

// knowledgeText concatenates the agent's knowledge entries for the summary
// prompt. Fetch failures degrade to an empty knowledge section.
func (w *Worker) knowledgeText(ctx context.Context, agentID types.AgentID) string {
	if w.knowledge == nil || agentID == "" {
		return ""
	}
	entries, err := w.knowledge.ListKnowledge(ctx, agentID)
	if err != nil {
		slog.Warn("knowledge fetch for summary failed", "agent_id", string(agentID), "error", err)
		return ""
	}
	parts := make([]string, 0, len(entries))
	for _, entry := range entries {
		parts = append(parts, entry.Content)
	}
	return strings.Join(parts, " ")
}
