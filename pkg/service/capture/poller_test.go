package capture_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/zettel-lab/kasten/pkg/domain/interfaces"
	"github.com/zettel-lab/kasten/pkg/domain/model"
	"github.com/zettel-lab/kasten/pkg/service/capture"
)

// mockSource is an at-least-once source: messages stay visible until acked.
type mockSource struct {
	mu          sync.Mutex
	messages    []*model.CaptureMessage
	acked       map[string]bool
	unreachable bool
}

func newMockSource() *mockSource {
	return &mockSource{acked: map[string]bool{}}
}

func (s *mockSource) Name() string { return "mock" }

func (s *mockSource) add(id, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, &model.CaptureMessage{
		MessageID:  id,
		RawBody:    body,
		ChannelTag: "inbox",
		ReceivedAt: time.Now().UTC(),
	})
}

func (s *mockSource) Fetch(ctx context.Context, limit int) ([]*model.CaptureMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unreachable {
		return nil, goerr.Wrap(interfaces.ErrSourceUnreachable, "mock source down")
	}

	var pending []*model.CaptureMessage
	for _, msg := range s.messages {
		if s.acked[msg.MessageID] {
			continue
		}
		pending = append(pending, msg)
		if len(pending) >= limit {
			break
		}
	}
	return pending, nil
}

func (s *mockSource) Ack(ctx context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acked[messageID] = true
	return nil
}

func (s *mockSource) ackedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.acked)
}

type mockCreator struct {
	mu       sync.Mutex
	notes    []*model.CaptureMessage
	failNext int
}

func (c *mockCreator) CreateCapturedNote(ctx context.Context, msg *model.CaptureMessage) (*model.Note, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failNext > 0 {
		c.failNext--
		return nil, goerr.New("store write failed")
	}

	c.notes = append(c.notes, msg)
	return &model.Note{ID: model.NewNoteID(), Content: msg.RawBody}, nil
}

func (c *mockCreator) created() []*model.CaptureMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*model.CaptureMessage(nil), c.notes...)
}

func TestPollerCreatesNoteAndAcks(t *testing.T) {
	source := newMockSource()
	source.add("msg-1", "An idea captured from chat")

	creator := &mockCreator{}
	poller, err := capture.NewPoller(source, creator, time.Minute)
	gt.NoError(t, err).Required()

	gt.NoError(t, poller.Poll(context.Background()))

	notes := creator.created()
	gt.A(t, notes).Length(1)
	gt.Value(t, notes[0].MessageID).Equal("msg-1")
	gt.Number(t, source.ackedCount()).Equal(1)
	gt.Value(t, poller.LastPollUTC().IsZero()).Equal(false)
}

func TestPollerRedeliveryAfterFailureRetries(t *testing.T) {
	source := newMockSource()
	source.add("msg-1", "Flaky capture")

	creator := &mockCreator{failNext: 1}
	poller, err := capture.NewPoller(source, creator, time.Minute)
	gt.NoError(t, err).Required()

	// First poll: creation fails, message must stay unacked. The poll
	// itself still succeeds; only the one message is left for redelivery.
	gt.NoError(t, poller.Poll(context.Background()))
	gt.A(t, creator.created()).Length(0)
	gt.Number(t, source.ackedCount()).Equal(0)

	// Redelivery on the next poll succeeds.
	gt.NoError(t, poller.Poll(context.Background()))
	gt.A(t, creator.created()).Length(1)
	gt.Number(t, source.ackedCount()).Equal(1)
}

func TestPollerRedeliveryAfterSuccessIsIdempotent(t *testing.T) {
	source := newMockSource()
	source.add("msg-1", "Captured once")

	creator := &mockCreator{}
	poller, err := capture.NewPoller(source, creator, time.Minute)
	gt.NoError(t, err).Required()

	gt.NoError(t, poller.Poll(context.Background()))
	gt.A(t, creator.created()).Length(1)

	// Simulate the source losing the ack and redelivering.
	source.mu.Lock()
	delete(source.acked, "msg-1")
	source.mu.Unlock()

	gt.NoError(t, poller.Poll(context.Background()))
	gt.A(t, creator.created()).Length(1)
	gt.Number(t, source.ackedCount()).Equal(1)
}

func TestPollerUnreachableSourceKeepsLastPoll(t *testing.T) {
	source := newMockSource()
	creator := &mockCreator{}
	poller, err := capture.NewPoller(source, creator, time.Minute)
	gt.NoError(t, err).Required()

	gt.NoError(t, poller.Poll(context.Background()))
	first := poller.LastPollUTC()
	gt.Value(t, first.IsZero()).Equal(false)

	source.mu.Lock()
	source.unreachable = true
	source.mu.Unlock()

	err = poller.Poll(context.Background())
	gt.Error(t, err).Is(interfaces.ErrSourceUnreachable)
	gt.Value(t, poller.LastPollUTC()).Equal(first)
}
