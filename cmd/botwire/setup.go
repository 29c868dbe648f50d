package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/edouard/botwire/internal/botapi"
	"github.com/edouard/botwire/internal/config"
	"github.com/edouard/botwire/internal/observability"
	"github.com/edouard/botwire/internal/proxy"
	"github.com/edouard/botwire/internal/schema"
	"github.com/edouard/botwire/internal/transport"
	"github.com/edouard/botwire/internal/vault"
)

const (
	defaultConfigPath = "config.json"
	defaultVaultPath  = "vault.enc"

	envBotToken      = "BOT_TOKEN"
	envWebhookSecret = "WEBHOOK_SECRET"
	envPassphrase    = "BOTWIRE_VAULT_PASSPHRASE"
)

// Replaceable for testing.
var (
	configLoad    = config.Load
	setupOTel     = observability.SetupOTel
	signalContext = func() (context.Context, context.CancelFunc) {
		return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	}
)

// app is everything a running command needs.
type app struct {
	cfg      *config.Config
	reg      *schema.Registry
	client   *transport.Client
	bot      *botapi.Bot
	secrets  *secretSource
	shutdown func(context.Context) error
}

// loadConfig reads the config file. A missing default config file means
// defaults plus environment.
func loadConfig(opts globalOpts) (*config.Config, error) {
	path := opts.configPath
	if !opts.configExplicit {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}
	return configLoad(path)
}

// loadRegistry returns the built-in Bot API schema, or the one in file.
func loadRegistry(file string) (*schema.Registry, error) {
	if file == "" {
		return schema.BotAPI()
	}
	return schema.LoadFile(file)
}

// setup wires a Bot from the configuration and the stored secrets.
func setup(opts globalOpts, stdin io.Reader, stderr io.Writer) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	observability.SetupLogging(stderr, cfg.LogLevel, cfg.LogPretty)
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdown, err := setupOTel(context.Background(), cfg.OTel, Version)
	if err != nil {
		return nil, fmt.Errorf("otel: %w", err)
	}
	fail := func(err error) (*app, error) {
		shutdownOTel(&app{shutdown: shutdown})
		return nil, err
	}

	reg, err := loadRegistry(cfg.SchemaFile)
	if err != nil {
		return fail(err)
	}

	secrets := newSecretSource(opts.vaultPath, stdin, stderr)
	token, err := secrets.get(vault.KeyBotToken, envBotToken)
	if err != nil {
		return fail(err)
	}

	client := transport.New(token,
		transport.WithBaseURL(cfg.APIURL),
		transport.WithTimeout(cfg.Timeout.Duration),
		transport.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
	)
	d := proxy.NewDispatcher(reg, client)
	log.Debug().
		Str("component", "cmd").
		Str("operation", "setup").
		Str("api_url", cfg.APIURL).
		Int("methods", len(reg.Methods())).
		Msg("dispatcher ready")

	return &app{
		cfg:      cfg,
		reg:      reg,
		client:   client,
		bot:      botapi.New(d, botapi.WithDownloader(client)),
		secrets:  secrets,
		shutdown: shutdown,
	}, nil
}

// secretSource resolves secrets from the environment first and opens the
// vault, prompting for its passphrase, only when one is missing there.
type secretSource struct {
	path    string
	scanner *bufio.Scanner
	prompt  io.Writer
	v       *vault.Vault
}

func newSecretSource(path string, stdin io.Reader, prompt io.Writer) *secretSource {
	return &secretSource{path: path, scanner: bufio.NewScanner(stdin), prompt: prompt}
}

func (s *secretSource) get(key, env string) (string, error) {
	if val := os.Getenv(env); val != "" {
		return val, nil
	}
	if s.v == nil {
		passphrase := os.Getenv(envPassphrase)
		if passphrase == "" {
			var err error
			if passphrase, err = readPassphrase(s.scanner, s.prompt); err != nil {
				return "", err
			}
		}
		v, err := openVault(passphrase, s.path)
		if err != nil {
			return "", fmt.Errorf("%s: %s", key, vaultUserError(err))
		}
		s.v = v
	}
	return vault.Secret(s.v, key, env)
}

// readPassphrase prompts on w and reads a line from the scanner.
func readPassphrase(scanner *bufio.Scanner, w io.Writer) (string, error) {
	fmt.Fprint(w, "Vault passphrase: ")
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		return "", fmt.Errorf("reading passphrase: unexpected end of input")
	}
	passphrase := strings.TrimRight(scanner.Text(), "\r\n")
	if passphrase == "" {
		return "", errors.New("passphrase cannot be empty")
	}
	return passphrase, nil
}
