package config

import (
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"github.com/zettel-lab/kasten/pkg/domain/interfaces"
	"github.com/zettel-lab/kasten/pkg/service/capture"
)

// Capture holds CLI flags for the capture ingestion poller. Capture is
// optional: without a bot token the poller is simply not started.
type Capture struct {
	slackBotToken  string `masq:"secret"`
	slackChannelID string
	channelTag     string
	interval       time.Duration
}

// Flags returns CLI flags for capture configuration
func (c *Capture) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "slack-bot-token",
			Usage:       "Slack bot token for the capture channel (enables capture ingestion)",
			Sources:     cli.EnvVars("KASTEN_SLACK_BOT_TOKEN"),
			Destination: &c.slackBotToken,
		},
		&cli.StringFlag{
			Name:        "slack-channel-id",
			Usage:       "Slack channel ID to poll for captures",
			Sources:     cli.EnvVars("KASTEN_SLACK_CHANNEL_ID"),
			Destination: &c.slackChannelID,
		},
		&cli.StringFlag{
			Name:        "capture-channel-tag",
			Usage:       "Tag applied to notes captured from the channel",
			Value:       "inbox",
			Sources:     cli.EnvVars("KASTEN_CAPTURE_CHANNEL_TAG"),
			Destination: &c.channelTag,
		},
		&cli.DurationFlag{
			Name:        "capture-interval",
			Usage:       "Poll interval for the capture source",
			Value:       time.Minute,
			Sources:     cli.EnvVars("KASTEN_CAPTURE_INTERVAL"),
			Destination: &c.interval,
		},
	}
}

// LogAttrs returns log attributes for the capture configuration
func (c *Capture) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.Bool("enabled", c.Enabled()),
		slog.String("channel_id", c.slackChannelID),
		slog.String("channel_tag", c.channelTag),
		slog.Duration("interval", c.interval),
	}
}

// Enabled reports whether capture ingestion is configured
func (c *Capture) Enabled() bool {
	return c.slackBotToken != ""
}

// Interval returns the configured poll interval
func (c *Capture) Interval() time.Duration {
	return c.interval
}

// Configure creates the capture source from the flags. Returns nil when
// capture is not configured.
func (c *Capture) Configure() (interfaces.CaptureSource, error) {
	if !c.Enabled() {
		return nil, nil
	}
	if c.slackChannelID == "" {
		return nil, goerr.New("slack-channel-id is required when slack-bot-token is set")
	}
	return capture.NewSlackSource(c.slackBotToken, c.slackChannelID, c.channelTag)
}
