package capture

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"
	"github.com/zettel-lab/kasten/pkg/domain/interfaces"
	"github.com/zettel-lab/kasten/pkg/domain/model"
)

// SlackSource reads a Slack channel as a pollable capture source. Message
// timestamps are the message IDs; acknowledging a message advances a cursor
// so unacked messages are redelivered on the next fetch.
type SlackSource struct {
	client     *slack.Client
	channelID  string
	channelTag string

	mu      sync.Mutex
	cursor  string          // newest contiguously acked message timestamp
	pending []string        // unacked timestamps from the last fetch, oldest first
	acked   map[string]bool // out-of-order acks waiting for their prefix
}

var _ interfaces.CaptureSource = &SlackSource{}

// NewSlackSource creates a capture source reading the given channel
func NewSlackSource(token, channelID, channelTag string) (*SlackSource, error) {
	if token == "" {
		return nil, goerr.New("slack token is required")
	}
	if channelID == "" {
		return nil, goerr.New("slack channel ID is required")
	}

	return &SlackSource{
		client:     slack.New(token),
		channelID:  channelID,
		channelTag: channelTag,
		acked:      make(map[string]bool),
	}, nil
}

func (s *SlackSource) Name() string {
	return "slack:" + s.channelID
}

func (s *SlackSource) Fetch(ctx context.Context, limit int) ([]*model.CaptureMessage, error) {
	s.mu.Lock()
	cursor := s.cursor
	s.mu.Unlock()

	params := &slack.GetConversationHistoryParameters{
		ChannelID: s.channelID,
		Oldest:    cursor,
		Limit:     limit,
		Inclusive: false,
	}

	resp, err := s.client.GetConversationHistoryContext(ctx, params)
	if err != nil {
		return nil, goerr.Wrap(interfaces.ErrSourceUnreachable, "slack history fetch failed",
			goerr.V("channel", s.channelID), goerr.V("cause", err.Error()))
	}

	// Slack returns newest first; deliver oldest first.
	var msgs []*model.CaptureMessage
	var pending []string
	for i := len(resp.Messages) - 1; i >= 0; i-- {
		m := resp.Messages[i]
		if m.BotID != "" || m.SubType != "" || m.Text == "" {
			continue
		}
		pending = append(pending, m.Timestamp)
		msgs = append(msgs, &model.CaptureMessage{
			MessageID:  m.Timestamp,
			RawBody:    m.Text,
			ChannelTag: s.channelTag,
			ReceivedAt: slackTimestamp(m.Timestamp),
		})
	}

	s.mu.Lock()
	s.pending = pending
	s.mu.Unlock()

	return msgs, nil
}

// Ack marks a message consumed. Slack offers no per-message delete for a
// reader, so acknowledgement is a cursor: it only advances over a
// contiguous acked prefix, keeping any earlier failed message eligible for
// redelivery.
func (s *SlackSource) Ack(ctx context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.acked[messageID] = true
	for len(s.pending) > 0 && s.acked[s.pending[0]] {
		s.cursor = s.pending[0]
		delete(s.acked, s.pending[0])
		s.pending = s.pending[1:]
	}
	return nil
}

func slackTimestamp(ts string) time.Time {
	if ts == "" {
		return time.Time{}
	}
	sec, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(0, int64(sec*float64(time.Second))).UTC()
}
