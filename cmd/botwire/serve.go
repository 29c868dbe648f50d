package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/edouard/botwire/internal/botapi"
	"github.com/edouard/botwire/internal/heartbeat"
	"github.com/edouard/botwire/internal/schema"
	"github.com/edouard/botwire/internal/vault"
	"github.com/edouard/botwire/internal/watcher"
)

const shutdownTimeout = 10 * time.Second

// runEcho answers every text message with the same text, receiving
// updates by long polling.
func runEcho(opts globalOpts, stdin io.Reader, stderr io.Writer) int {
	a, err := setup(opts, stdin, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer shutdownOTel(a)

	ctx, stop := signalContext()
	defer stop()

	// getUpdates is refused while a webhook is registered.
	if err := a.bot.DeleteWebhook(ctx, false); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	me, err := a.bot.GetMe(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	updates := make(chan botapi.Update, 16)
	poller := botapi.NewPoller(a.bot, a.cfg.AllowedIDs, int(a.cfg.PollTimeout.Seconds()), "message")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		poller.Run(ctx, updates)
		return nil
	})
	g.Go(func() error { return echo(ctx, a.bot, updates, nil) })
	watchSchema(ctx, g, a)
	if a.cfg.MetricsListen != "" {
		srv := &http.Server{Addr: a.cfg.MetricsListen, Handler: botapi.NewOpsRouter(a.cfg.OTel.ServiceName), ReadHeaderTimeout: 10 * time.Second}
		serveHTTP(ctx, g, srv)
	}

	log.Info().Str("component", "cmd").Str("operation", "echo").Str("bot", me.Username).Msg("echo bot started")
	fmt.Fprintf(stderr, "@%s is echoing. Press Ctrl+C to stop.\n", me.Username)
	if err := g.Wait(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stderr, "Stopped.")
	return 0
}

// runWebhook registers a webhook, serves it, and echoes updates until
// interrupted; the webhook is removed on the way out.
func runWebhook(opts globalOpts, stdin io.Reader, stderr io.Writer) int {
	a, err := setup(opts, stdin, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer shutdownOTel(a)

	if a.cfg.Webhook.PublicURL == "" {
		fmt.Fprintln(stderr, "Error: webhook.public_url is not configured")
		return 1
	}
	secret, err := a.secrets.get(vault.KeyWebhookSecret, envWebhookSecret)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ctx, stop := signalContext()
	defer stop()

	updates := make(chan botapi.Update, 16)
	router := botapi.NewWebhookRouter(a.cfg.OTel.ServiceName, a.cfg.Webhook.Path, secret, updates)
	srv := &http.Server{Addr: a.cfg.Webhook.Listen, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	serveHTTP(gctx, g, srv)
	g.Go(func() error { return echo(gctx, a.bot, updates, allowList(a.cfg.AllowedIDs)) })
	watchSchema(gctx, g, a)

	hook := botapi.WebhookConfig{
		URL:            strings.TrimSuffix(a.cfg.Webhook.PublicURL, "/") + a.cfg.Webhook.Path,
		SecretToken:    secret,
		AllowedUpdates: []string{"message"},
	}
	if err := a.bot.SetWebhook(gctx, hook); err != nil {
		stop()
		_ = g.Wait()
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	log.Info().
		Str("component", "cmd").
		Str("operation", "webhook").
		Str("listen", a.cfg.Webhook.Listen).
		Str("url", hook.URL).
		Msg("webhook registered")
	fmt.Fprintf(stderr, "Receiving updates at %s. Press Ctrl+C to stop.\n", hook.URL)

	if interval := a.cfg.Webhook.CheckInterval.Duration; interval > 0 {
		monitor := heartbeat.NewExecutor(a.bot, botSender(a.bot), a.cfg.AllowedIDs, a.cfg.Webhook.MaxPending)
		g.Go(func() error {
			monitor.Run(gctx, interval)
			return nil
		})
	}

	waitErr := g.Wait()

	dctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.bot.DeleteWebhook(dctx, false); err != nil {
		log.Warn().Str("component", "cmd").Str("operation", "webhook").Err(err).Msg("failed to delete webhook")
	}
	if waitErr != nil {
		fmt.Fprintf(stderr, "Error: %v\n", waitErr)
		return 1
	}
	fmt.Fprintln(stderr, "Stopped.")
	return 0
}

// serveHTTP runs srv in g and shuts it down when ctx is done.
func serveHTTP(ctx context.Context, g *errgroup.Group, srv *http.Server) {
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server %s: %w", srv.Addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
}

// watchSchema reloads the schema file into the dispatcher whenever it
// changes. A file that fails to load leaves the current schema in place.
func watchSchema(ctx context.Context, g *errgroup.Group, a *app) {
	path, interval := a.cfg.SchemaFile, a.cfg.SchemaReload.Duration
	if path == "" || interval <= 0 {
		return
	}
	changes := make(chan struct{}, 1)
	w := watcher.New(interval, path)
	g.Go(func() error {
		w.Run(ctx, changes)
		return nil
	})
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-changes:
				reg, err := schema.LoadFile(path)
				if err != nil {
					log.Error().
						Str("component", "cmd").
						Str("operation", "schema_reload").
						Str("path", path).
						Err(err).
						Msg("schema reload failed, keeping the current schema")
					continue
				}
				a.bot.Dispatcher().SetRegistry(reg)
			}
		}
	})
}

// echo replies to each text message with its own text until ctx is done.
// Messages from senders rejected by allow are skipped; a nil allow accepts
// everyone. Send failures are logged and do not stop the loop.
func echo(ctx context.Context, bot *botapi.Bot, updates <-chan botapi.Update, allow func(*botapi.User) bool) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case u := <-updates:
			msg := u.Message
			if msg == nil || msg.Text == "" {
				continue
			}
			if allow != nil && !allow(msg.From) {
				log.Warn().
					Str("component", "cmd").
					Str("operation", "echo").
					Int64("update_id", u.UpdateID).
					Msg("rejected update from unknown sender")
				continue
			}
			_, err := bot.SendMessage(ctx, msg.Chat.ID, msg.Text, &botapi.MessageOptions{
				ThreadID:         msg.MessageThreadID,
				Entities:         msg.Entities,
				ReplyToMessageID: msg.MessageID,
			})
			if err != nil && ctx.Err() == nil {
				log.Error().
					Str("component", "cmd").
					Str("operation", "echo").
					Int64("chat_id", msg.Chat.ID).
					Err(err).
					Msg("failed to echo message")
			}
		}
	}
}

// allowList accepts users whose id is in ids; an empty list accepts everyone.
func allowList(ids []int64) func(*botapi.User) bool {
	if len(ids) == 0 {
		return nil
	}
	allowed := make(map[int64]bool, len(ids))
	for _, id := range ids {
		allowed[id] = true
	}
	return func(u *botapi.User) bool { return u != nil && allowed[u.ID] }
}

// botSender delivers heartbeat alerts as plain messages.
func botSender(bot *botapi.Bot) heartbeat.Sender {
	return heartbeat.SenderFunc(func(ctx context.Context, chatID int64, text string) error {
		_, err := bot.SendMessage(ctx, chatID, text, nil)
		return err
	})
}

func shutdownOTel(a *app) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.shutdown(ctx); err != nil {
		log.Warn().Str("component", "cmd").Str("operation", "shutdown").Err(err).Msg("trace export shutdown failed")
	}
}
