// Package capture pulls externally queued captures (email or chat relayed
// text) into the knowledge base as fleeting notes.
package capture

import (
	"context"
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/m-mizutani/goerr/v2"
	"github.com/zettel-lab/kasten/pkg/domain/interfaces"
	"github.com/zettel-lab/kasten/pkg/domain/model"
	"github.com/zettel-lab/kasten/pkg/utils/logging"
)

const (
	defaultFetchLimit  = 50
	defaultDedupeSize  = 4096
	defaultPollTimeout = 30 * time.Second
)

// NoteCreator turns a capture message into a durable fleeting note. The
// note use case implements this; creating the note also enqueues it for
// embedding.
type NoteCreator interface {
	CreateCapturedNote(ctx context.Context, msg *model.CaptureMessage) (*model.Note, error)
}

// Poller periodically drains a capture source. Delivery is at-least-once:
// the processed-message LRU keeps redelivered messages from creating
// duplicate notes, and a message is acknowledged only after its note exists.
type Poller struct {
	source   interfaces.CaptureSource
	creator  NoteCreator
	interval time.Duration

	fetchLimit int
	seen       *lru.Cache[string, time.Time]

	mu       sync.RWMutex
	lastPoll time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// PollerOption configures a Poller
type PollerOption func(*Poller)

// WithFetchLimit bounds messages pulled per poll
func WithFetchLimit(n int) PollerOption {
	return func(p *Poller) {
		if n > 0 {
			p.fetchLimit = n
		}
	}
}

// WithDedupeWindow sets the bounded retention window (message count) for
// processed message IDs.
func WithDedupeWindow(n int) PollerOption {
	return func(p *Poller) {
		if n > 0 {
			cache, err := lru.New[string, time.Time](n)
			if err == nil {
				p.seen = cache
			}
		}
	}
}

// NewPoller creates a capture ingestion poller
func NewPoller(source interfaces.CaptureSource, creator NoteCreator, interval time.Duration, opts ...PollerOption) (*Poller, error) {
	if source == nil {
		return nil, goerr.New("capture source is required")
	}
	if creator == nil {
		return nil, goerr.New("note creator is required")
	}

	seen, err := lru.New[string, time.Time](defaultDedupeSize)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create dedupe cache")
	}

	p := &Poller{
		source:     source,
		creator:    creator,
		interval:   interval,
		fetchLimit: defaultFetchLimit,
		seen:       seen,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// LastPollUTC returns the time of the last successful poll (source
// reachable, even if empty). Zero until the first success.
func (p *Poller) LastPollUTC() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastPoll
}

// Start begins the background poll loop. Does not block.
func (p *Poller) Start(ctx context.Context) error {
	logging.From(ctx).Info("capture poller starting",
		"source", p.source.Name(),
		"interval", p.interval.String())

	go p.run(ctx)
	return nil
}

// Stop signals the poller to stop and waits for completion
func (p *Poller) Stop() {
	logging.Default().Info("capture poller stopping")
	close(p.stopCh)
	<-p.doneCh
	logging.Default().Info("capture poller stopped")
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.doneCh)

	if err := p.Poll(ctx); err != nil {
		logging.From(ctx).Error("capture poll failed (will retry next interval)", "error", err.Error())
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := p.Poll(ctx); err != nil {
				logging.From(ctx).Error("capture poll failed (will retry next interval)", "error", err.Error())
			}

		case <-p.stopCh:
			return

		case <-ctx.Done():
			return
		}
	}
}

// Poll performs a single fetch-create-ack cycle
func (p *Poller) Poll(ctx context.Context) error {
	logger := logging.From(ctx)

	pollCtx, cancel := context.WithTimeout(ctx, defaultPollTimeout)
	defer cancel()

	msgs, err := p.source.Fetch(pollCtx, p.fetchLimit)
	if err != nil {
		if errors.Is(err, interfaces.ErrSourceUnreachable) {
			return goerr.Wrap(err, "capture source unreachable", goerr.V("source", p.source.Name()))
		}
		return goerr.Wrap(err, "failed to fetch captures", goerr.V("source", p.source.Name()))
	}

	// The source answered: record the successful poll even when empty.
	p.mu.Lock()
	p.lastPoll = time.Now().UTC()
	p.mu.Unlock()

	created := 0
	for _, msg := range msgs {
		if _, done := p.seen.Get(msg.MessageID); done {
			// Redelivery after success: ack again so it stops coming back.
			if err := p.source.Ack(ctx, msg.MessageID); err != nil {
				logger.Warn("failed to re-ack processed capture",
					"message_id", msg.MessageID, "error", err.Error())
			}
			continue
		}

		if _, err := p.creator.CreateCapturedNote(ctx, msg); err != nil {
			// Leave unacknowledged so the source redelivers.
			logger.Error("failed to create note from capture",
				"message_id", msg.MessageID, "error", err.Error())
			continue
		}

		p.seen.Add(msg.MessageID, time.Now().UTC())

		if err := p.source.Ack(ctx, msg.MessageID); err != nil {
			// The note exists and the dedupe window will swallow the
			// redelivery; just log.
			logger.Warn("failed to ack capture", "message_id", msg.MessageID, "error", err.Error())
		}
		created++
	}

	if len(msgs) > 0 {
		logger.Info("capture poll completed", "fetched", len(msgs), "created", created)
	}
	return nil
}
