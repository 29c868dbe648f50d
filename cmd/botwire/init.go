package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/edouard/botwire/internal/config"
	"github.com/edouard/botwire/internal/vault"
)

// Replaceable for testing error paths.
var (
	vaultCreate = vault.Create
	configSave  = config.Save
	newSecret   = func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") }
)

// readPrompt prints prompt to w, reads one line from scanner, and returns
// the trimmed value. If empty, defaultVal is returned; an empty answer
// without a default is an error unless optional is set.
func readPrompt(scanner *bufio.Scanner, prompt, defaultVal string, optional bool, w io.Writer) (string, error) {
	fmt.Fprint(w, prompt)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("init: reading input: %w", err)
		}
		return "", fmt.Errorf("init: reading input: unexpected end of input")
	}
	val := strings.TrimSpace(scanner.Text())
	if val == "" {
		if defaultVal != "" || optional {
			return defaultVal, nil
		}
		return "", fmt.Errorf("init: required value not provided")
	}
	return val, nil
}

// parseAllowedIDs parses comma-separated user ids. An empty input means
// every user is allowed.
func parseAllowedIDs(input string) ([]int64, error) {
	ids := []int64{}
	for _, p := range strings.Split(input, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("init: invalid user ID %q: %w", p, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// detectExisting lists the given files that already exist.
func detectExisting(paths ...string) []string {
	var found []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			found = append(found, p)
		}
	}
	return found
}

// runInit implements the interactive init wizard.
func runInit(opts globalOpts, stdin io.Reader, stderr io.Writer) int {
	log.Info().Str("component", "init").Str("operation", "start").Msg("wizard started")
	scanner := bufio.NewScanner(stdin)

	if existing := detectExisting(opts.configPath, opts.vaultPath); len(existing) > 0 {
		fmt.Fprintln(stderr, "Warning: existing botwire files detected.")
		fmt.Fprintf(stderr, "  Found: %s\n", strings.Join(existing, ", "))
		fmt.Fprint(stderr, "Overwrite? This will destroy existing secrets. (y/N): ")
		if !scanner.Scan() {
			fmt.Fprintln(stderr, "Error: unexpected end of input")
			return 1
		}
		if answer := strings.TrimSpace(scanner.Text()); answer != "y" && answer != "Y" {
			fmt.Fprintln(stderr, "Aborted.")
			return 1
		}
		log.Info().Str("component", "init").Str("operation", "overwrite_check").Msg("overwrite confirmed")
	}

	token, err := readPrompt(scanner, "Bot token: ", "", false, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := vault.ValidateBotToken(token); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	idsInput, err := readPrompt(scanner, "Allowed user IDs (comma-separated, empty for everyone): ", "", true, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	ids, err := parseAllowedIDs(idsInput)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	publicURL, err := readPrompt(scanner, "Webhook public URL (empty to use long polling): ", "", true, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	passphrase, err := readPrompt(scanner, "Vault passphrase: ", "", false, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	cfg := config.Default()
	cfg.AllowedIDs = ids
	cfg.Webhook.PublicURL = publicURL
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Fprintln(stderr, "")
	fmt.Fprintln(stderr, "Creating botwire instance...")

	v, err := vaultCreate(passphrase, opts.vaultPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: init: create vault: %v\n", err)
		return 1
	}
	for _, secret := range []struct{ key, value string }{
		{vault.KeyBotToken, token},
		{vault.KeyWebhookSecret, newSecret()},
	} {
		if err := v.Set(secret.key, secret.value); err != nil {
			os.Remove(opts.vaultPath)
			fmt.Fprintf(stderr, "Error: init: store %s: %v\n", secret.key, err)
			return 1
		}
	}
	fmt.Fprintln(stderr, "  ✓ Vault created with bot token and webhook secret")

	if err := configSave(cfg, opts.configPath); err != nil {
		os.Remove(opts.vaultPath)
		fmt.Fprintf(stderr, "Error: init: save config: %v\n", err)
		return 1
	}
	fmt.Fprintln(stderr, "  ✓ Configuration saved")

	fmt.Fprintln(stderr, "")
	if publicURL != "" {
		fmt.Fprintln(stderr, "botwire is ready! Run 'botwire webhook' to start.")
	} else {
		fmt.Fprintln(stderr, "botwire is ready! Run 'botwire echo' to start.")
	}
	return 0
}
