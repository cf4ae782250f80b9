package model

import "time"

// CaptureMessage is a single externally queued capture (email or chat
// relayed text) pulled by the ingestion poller. Delivery is at-least-once:
// MessageID is the dedupe key.
type CaptureMessage struct {
	MessageID  string
	RawBody    string
	ChannelTag string
	ReceivedAt time.Time
}
