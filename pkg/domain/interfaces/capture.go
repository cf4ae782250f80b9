package interfaces

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/zettel-lab/kasten/pkg/domain/model"
)

// CaptureSource is a pollable at-least-once message source of external
// captures. A message stays visible until acknowledged, so a failed note
// creation leads to redelivery on a later poll.
type CaptureSource interface {
	// Name identifies the source for logging and status reporting
	Name() string

	// Fetch returns up to limit pending messages. An empty slice with a nil
	// error means the source is reachable but has nothing queued; an
	// unreachable source returns an error wrapping ErrSourceUnreachable.
	Fetch(ctx context.Context, limit int) ([]*model.CaptureMessage, error)

	// Ack marks a message as consumed so it is not redelivered
	Ack(ctx context.Context, messageID string) error
}

// ErrSourceUnreachable distinguishes "source down" from "source empty"
var ErrSourceUnreachable = goerr.New("capture source unreachable")
