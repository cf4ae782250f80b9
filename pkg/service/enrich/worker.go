package enrich

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/zettel-lab/kasten/pkg/domain/interfaces"
	"github.com/zettel-lab/kasten/pkg/domain/model"
	"github.com/zettel-lab/kasten/pkg/domain/types"
	"github.com/zettel-lab/kasten/pkg/utils/logging"
)

// Worker drains the enrichment queue, calls the embedding provider and
// drives the embedding state machine.
//
// Architecture assumptions:
// - Single server instance (the "currently processing" set is in-memory)
// - The queue is a performance optimization over the EmbedStatus column;
//   the startup reconciliation scan is the source of truth after a crash
type Worker struct {
	repo     interfaces.Repository
	provider interfaces.EmbeddingProvider
	queue    *Queue

	poolSize        int
	maxRetries      int
	backoffBase     time.Duration
	backoffCap      time.Duration
	providerTimeout time.Duration

	// Per-note serialization: a note in active never gets a second
	// concurrent provider call; a re-enqueue arriving mid-flight is parked
	// in again and replayed once the first attempt finishes.
	mu     sync.Mutex
	active map[model.NoteID]bool
	again  map[model.NoteID]bool

	stopCh chan struct{}
	doneCh chan struct{}

	embedded atomic.Uint64
	retried  atomic.Uint64
	failed   atomic.Uint64
	dropped  atomic.Uint64
}

// WorkerOption configures a Worker
type WorkerOption func(*Worker)

// WithPoolSize bounds the number of concurrent provider calls. Keep it
// small to respect provider rate limits.
func WithPoolSize(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.poolSize = n
		}
	}
}

// WithMaxRetries sets the transient-failure retry budget
func WithMaxRetries(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.maxRetries = n
		}
	}
}

// WithBackoff sets the exponential backoff base and cap
func WithBackoff(base, cap time.Duration) WorkerOption {
	return func(w *Worker) {
		if base > 0 {
			w.backoffBase = base
		}
		if cap > 0 {
			w.backoffCap = cap
		}
	}
}

// WithProviderTimeout bounds each provider call. Unbounded waits on a
// remote call are not acceptable.
func WithProviderTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.providerTimeout = d
		}
	}
}

// NewWorker creates an embedding worker consuming the given queue
func NewWorker(repo interfaces.Repository, provider interfaces.EmbeddingProvider, queue *Queue, opts ...WorkerOption) *Worker {
	w := &Worker{
		repo:            repo,
		provider:        provider,
		queue:           queue,
		poolSize:        2,
		maxRetries:      3,
		backoffBase:     500 * time.Millisecond,
		backoffCap:      30 * time.Second,
		providerTimeout: 30 * time.Second,
		active:          make(map[model.NoteID]bool),
		again:           make(map[model.NoteID]bool),
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Stats is a snapshot of the worker's monotonic counters
type Stats struct {
	Embedded uint64 `json:"embedded"`
	Retried  uint64 `json:"retried"`
	Failed   uint64 `json:"failed"`
	Dropped  uint64 `json:"dropped"`
	Queued   int    `json:"queued"`
}

// Stats returns the current counter snapshot
func (w *Worker) Stats() Stats {
	return Stats{
		Embedded: w.embedded.Load(),
		Retried:  w.retried.Load(),
		Failed:   w.failed.Load(),
		Dropped:  w.dropped.Load(),
		Queued:   w.queue.Len(),
	}
}

// Start runs the reconciliation scan and launches the worker pool. It does
// not block.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.Reconcile(ctx); err != nil {
		return goerr.Wrap(err, "failed to reconcile pending notes")
	}

	logging.From(ctx).Info("embedding worker starting",
		"pool_size", w.poolSize,
		"max_retries", w.maxRetries,
		"provider_model", w.provider.Model())

	go w.run(ctx)
	return nil
}

// Stop signals the pool to stop and waits for in-flight work to finish
func (w *Worker) Stop() {
	logging.Default().Info("embedding worker stopping")
	close(w.stopCh)
	<-w.doneCh
	logging.Default().Info("embedding worker stopped")
}

// Reconcile re-enqueues every note whose embedding state demands work. The
// Processing state is included: a crash can strand notes there, and no
// worker is running yet when this scan executes.
func (w *Worker) Reconcile(ctx context.Context) error {
	ids, err := w.repo.Note().ListIDsByEmbedStatus(ctx,
		types.EmbedStatusPending, types.EmbedStatusStale, types.EmbedStatusProcessing)
	if err != nil {
		return goerr.Wrap(err, "failed to list notes needing embedding")
	}

	for _, id := range ids {
		w.queue.Enqueue(id)
	}

	if len(ids) > 0 {
		logging.From(ctx).Info("reconciled unembedded notes", "count", len(ids))
	}
	return nil
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.doneCh)

	var wg sync.WaitGroup
	for i := 0; i < w.poolSize; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.consume(ctx)
		}()
	}
	wg.Wait()
}

func (w *Worker) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case entry, ok := <-w.queue.Dequeue():
			if !ok {
				return
			}
			w.safeProcess(ctx, entry)
		}
	}
}

// safeProcess wraps one processing attempt so a bad note can never halt
// the queue.
func (w *Worker) safeProcess(ctx context.Context, entry Entry) {
	defer func() {
		if r := recover(); r != nil {
			logging.From(ctx).Error("panic while embedding note",
				"note_id", entry.NoteID, "panic", r)
		}
	}()

	if !w.acquire(entry.NoteID) {
		return
	}
	defer w.release(entry.NoteID)

	w.process(ctx, entry.NoteID)
}

// acquire claims the note for processing. Returns false when another
// goroutine holds it; the duplicate is parked for a replay instead of
// spawning a concurrent provider call.
func (w *Worker) acquire(id model.NoteID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.active[id] {
		w.again[id] = true
		return false
	}
	w.active[id] = true
	return true
}

func (w *Worker) release(id model.NoteID) {
	w.mu.Lock()
	replay := w.again[id]
	delete(w.again, id)
	delete(w.active, id)
	w.mu.Unlock()

	if replay {
		w.queue.Enqueue(id)
	}
}

func (w *Worker) process(ctx context.Context, id model.NoteID) {
	logger := logging.From(ctx)

	note, err := w.repo.Note().Get(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrNoteNotFound) {
			// Deleted mid-flight. Integrity case: drop silently.
			logger.Debug("note deleted before embedding, dropping", "note_id", id)
			w.dropped.Add(1)
			return
		}
		logger.Error("failed to load note for embedding", "note_id", id, "error", err)
		return
	}

	// Re-processing an already embedded note is a no-op refresh.
	if note.EmbedStatus == types.EmbedStatusCompleted {
		return
	}

	priorStatus := note.EmbedStatus.Normalize()
	if err := w.transition(ctx, id, model.EmbeddingUpdate{
		Status:     types.EmbedStatusProcessing,
		Model:      note.EmbeddingModel,
		RetryCount: note.EmbedRetryCount,
		Vector:     note.Embedding,
	}); err != nil {
		logger.Error("failed to mark note processing", "note_id", id, "error", err)
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, w.providerTimeout)
	defer cancel()

	startedAt := time.Now()
	vector, genErr := w.provider.Generate(callCtx, embedInput(note))
	duration := time.Since(startedAt)

	switch {
	case genErr == nil:
		if err := w.transition(ctx, id, model.EmbeddingUpdate{
			Status:     types.EmbedStatusCompleted,
			Model:      w.provider.Model(),
			RetryCount: 0,
			Vector:     vector,
		}); err != nil {
			logger.Error("failed to persist embedding", "note_id", id, "error", err)
			return
		}
		w.embedded.Add(1)
		logger.Info("note embedded",
			"note_id", id,
			"model", w.provider.Model(),
			"duration", duration.String())

	case ctx.Err() != nil:
		// Shutdown or caller cancellation, not a provider verdict. Restore
		// the prior state so reconciliation picks the note up again.
		if err := w.transition(context.WithoutCancel(ctx), id, model.EmbeddingUpdate{
			Status:     priorStatus,
			Model:      note.EmbeddingModel,
			RetryCount: note.EmbedRetryCount,
			Vector:     note.Embedding,
		}); err != nil {
			logger.Error("failed to restore note state after cancellation", "note_id", id, "error", err)
		}

	case interfaces.IsPermanentEmbeddingError(genErr):
		if err := w.transition(ctx, id, model.EmbeddingUpdate{
			Status:     types.EmbedStatusFailed,
			Error:      genErr.Error(),
			RetryCount: note.EmbedRetryCount,
		}); err != nil {
			logger.Error("failed to mark note failed", "note_id", id, "error", err)
			return
		}
		w.failed.Add(1)
		logger.Warn("note embedding failed permanently", "note_id", id, "error", genErr.Error())

	default:
		w.retryOrFail(ctx, note, genErr)
	}
}

// retryOrFail handles a transient failure: re-enqueue with exponential
// backoff while the retry budget lasts, otherwise park the note as Failed.
func (w *Worker) retryOrFail(ctx context.Context, note *model.Note, genErr error) {
	logger := logging.From(ctx)
	retryCount := note.EmbedRetryCount + 1

	if retryCount < w.maxRetries {
		if err := w.transition(ctx, note.ID, model.EmbeddingUpdate{
			Status:     types.EmbedStatusPending,
			Error:      genErr.Error(),
			RetryCount: retryCount,
			Model:      note.EmbeddingModel,
			Vector:     note.Embedding,
		}); err != nil {
			logger.Error("failed to record retry state", "note_id", note.ID, "error", err)
			return
		}

		delay := w.backoff(retryCount)
		w.retried.Add(1)
		logger.Warn("note embedding failed, will retry",
			"note_id", note.ID,
			"retry", retryCount,
			"delay", delay.String(),
			"error", genErr.Error())

		noteID := note.ID
		time.AfterFunc(delay, func() {
			w.queue.Enqueue(noteID)
		})
		return
	}

	if err := w.transition(ctx, note.ID, model.EmbeddingUpdate{
		Status:     types.EmbedStatusFailed,
		Error:      genErr.Error(),
		RetryCount: retryCount,
	}); err != nil {
		logger.Error("failed to mark note failed", "note_id", note.ID, "error", err)
		return
	}
	w.failed.Add(1)
	logger.Error("note embedding failed after retries",
		"note_id", note.ID,
		"retries", retryCount,
		"error", genErr.Error())
}

func (w *Worker) backoff(retryCount int) time.Duration {
	delay := w.backoffBase << uint(retryCount)
	if delay > w.backoffCap || delay <= 0 {
		delay = w.backoffCap
	}
	return delay
}

func (w *Worker) transition(ctx context.Context, id model.NoteID, update model.EmbeddingUpdate) error {
	err := w.repo.Note().UpdateEmbedding(ctx, id, update)
	if errors.Is(err, model.ErrNoteNotFound) {
		// Deleted while we were embedding. Drop silently.
		logging.From(ctx).Debug("note deleted during embedding, dropping", "note_id", id)
		w.dropped.Add(1)
		return nil
	}
	return err
}

// embedInput builds the provider input from a note. The title carries
// strong signal for short notes, so it is prepended to the content.
func embedInput(note *model.Note) string {
	if note.Title == "" {
		return note.Content
	}
	return note.Title + "\n\n" + note.Content
}
