package botapi

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edouard/botwire/internal/platform"
)

// retryFn is a package-level variable wrapping platform.Retry for testability.
var retryFn = platform.Retry

// retryDelay is the delay after all retries are exhausted before starting a new cycle.
var retryDelay = 5 * time.Second

// Poller receives updates using long polling.
type Poller struct {
	bot            *Bot
	allowedIDs     map[int64]bool
	allowedUpdates []string
	offset         int64
	timeout        int
}

// NewPoller creates a Poller. When allowedIDs is empty every sender is
// accepted; otherwise updates from other users, and updates without a
// sender, are dropped. timeout is the long-poll duration in seconds.
func NewPoller(bot *Bot, allowedIDs []int64, timeout int, allowedUpdates ...string) *Poller {
	allowed := make(map[int64]bool, len(allowedIDs))
	for _, id := range allowedIDs {
		allowed[id] = true
	}
	return &Poller{
		bot:            bot,
		allowedIDs:     allowed,
		allowedUpdates: allowedUpdates,
		timeout:        timeout,
	}
}

// Offset returns the id of the next update to fetch.
func (p *Poller) Offset() int64 { return p.offset }

// Poll performs a single getUpdates call and returns the updates.
func (p *Poller) Poll(ctx context.Context) ([]Update, error) {
	// Use a longer deadline than the poll itself to accommodate long polling.
	pollCtx, cancel := context.WithTimeout(ctx, time.Duration(p.timeout)*time.Second+5*time.Second)
	defer cancel()

	updates, err := p.bot.GetUpdates(pollCtx, p.offset, p.timeout, p.allowedUpdates)
	if err != nil {
		return nil, fmt.Errorf("botapi: poll: %w", err)
	}
	return updates, nil
}

// Run starts the long polling loop, filtering updates by sender and
// sending accepted updates on the out channel. It returns when ctx is done.
func (p *Poller) Run(ctx context.Context, out chan<- Update) {
	log.Info().Str("component", "botapi").Str("operation", "poll_start").Msg("poller started")

	for {
		var updates []Update
		err := retryFn(ctx, 3, 2*time.Second, func() error {
			var pollErr error
			updates, pollErr = p.Poll(ctx)
			return pollErr
		})
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Str("component", "botapi").Str("operation", "poll_stop").Msg("poller stopped")
				return
			}
			log.Error().Str("component", "botapi").Str("operation", "poll").Err(err).Msg("poll failed after retries")
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				log.Info().Str("component", "botapi").Str("operation", "poll_stop").Msg("poller stopped")
				return
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= p.offset {
				p.offset = u.UpdateID + 1
			}
			if !p.isAllowed(u.Sender()) {
				log.Warn().
					Str("component", "botapi").
					Str("operation", "allow_list").
					Int64("update_id", u.UpdateID).
					Int64("user_id", userID(u.Sender())).
					Msg("rejected update from unknown sender")
				continue
			}
			select {
			case out <- u:
			case <-ctx.Done():
				log.Info().Str("component", "botapi").Str("operation", "poll_stop").Msg("poller stopped")
				return
			}
		}
	}
}

func (p *Poller) isAllowed(user *User) bool {
	if len(p.allowedIDs) == 0 {
		return true
	}
	if user == nil {
		return false
	}
	return p.allowedIDs[user.ID]
}

func userID(user *User) int64 {
	if user == nil {
		return 0
	}
	return user.ID
}
