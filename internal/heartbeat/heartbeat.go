package heartbeat

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edouard/botwire/internal/botapi"
)

// now is replaceable for testing.
var now = time.Now

// InfoSource reports the webhook status.
type InfoSource interface {
	GetWebhookInfo(ctx context.Context) (*botapi.WebhookInfo, error)
}

// Sender abstracts the message sender for testability.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, chatID int64, text string) error

func (f SenderFunc) Send(ctx context.Context, chatID int64, text string) error {
	return f(ctx, chatID, text)
}

// Executor checks webhook delivery and alerts owners when the API reports
// a new delivery error or the pending backlog grows past maxPending.
type Executor struct {
	info       InfoSource
	sender     Sender
	ownerIDs   []int64
	maxPending int

	lastErrorDate  int64
	backlogAlerted bool
}

// NewExecutor creates a new heartbeat Executor. A maxPending of zero
// disables backlog alerts.
func NewExecutor(info InfoSource, sender Sender, ownerIDs []int64, maxPending int) *Executor {
	return &Executor{
		info:       info,
		sender:     sender,
		ownerIDs:   ownerIDs,
		maxPending: maxPending,
	}
}

// Execute runs one check. Each delivery error is reported once; the
// backlog alert is repeated only after the backlog drained below the limit.
func (e *Executor) Execute(ctx context.Context) error {
	info, err := e.info.GetWebhookInfo(ctx)
	if err != nil {
		log.Error().
			Str("component", "heartbeat").
			Str("operation", "execute").
			Err(err).
			Msg("webhook info unavailable")
		return fmt.Errorf("heartbeat: webhook info: %w", err)
	}

	log.Debug().
		Str("component", "heartbeat").
		Str("operation", "execute").
		Int("pending", info.PendingUpdateCount).
		Int64("last_error_date", info.LastErrorDate).
		Msg("webhook checked")

	if info.LastErrorDate > e.lastErrorDate {
		// On the first check only errors from the last hour are reported.
		if e.lastErrorDate != 0 || now().Sub(time.Unix(info.LastErrorDate, 0)) < time.Hour {
			e.alertOwners(ctx, fmt.Sprintf("Webhook delivery failed at %s: %s",
				time.Unix(info.LastErrorDate, 0).UTC().Format(time.RFC3339), info.LastErrorMessage))
		}
		e.lastErrorDate = info.LastErrorDate
	}

	switch over := e.maxPending > 0 && info.PendingUpdateCount > e.maxPending; {
	case over && !e.backlogAlerted:
		e.alertOwners(ctx, fmt.Sprintf("Webhook backlog: %d pending updates (limit %d)", info.PendingUpdateCount, e.maxPending))
		e.backlogAlerted = true
	case !over:
		e.backlogAlerted = false
	}
	return nil
}

// Run calls Execute every interval until ctx is done.
func (e *Executor) Run(ctx context.Context, interval time.Duration) {
	log.Info().
		Str("component", "heartbeat").
		Str("operation", "start").
		Dur("interval", interval).
		Msg("webhook monitor started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = e.Execute(ctx)
		}
	}
}

// alertOwners sends a notification to ALL owner IDs. Sender errors are logged but not fatal.
func (e *Executor) alertOwners(ctx context.Context, content string) {
	if len(e.ownerIDs) == 0 {
		log.Warn().
			Str("component", "heartbeat").
			Str("operation", "alert").
			Str("alert", content).
			Msg("no owner to alert")
		return
	}
	for _, id := range e.ownerIDs {
		log.Info().
			Str("component", "heartbeat").
			Str("operation", "alert").
			Int64("chat_id", id).
			Msg("sending heartbeat alert")
		if err := e.sender.Send(ctx, id, content); err != nil {
			log.Error().
				Str("component", "heartbeat").
				Str("operation", "alert").
				Int64("chat_id", id).
				Err(err).
				Msg("heartbeat alert send failed")
		}
	}
}
