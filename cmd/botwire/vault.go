package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/edouard/botwire/internal/vault"
)

// Replaceable for testing error paths.
var (
	vaultOpen         = vault.Open
	vaultOpenOrCreate = vault.OpenOrCreate
)

// runVault dispatches vault subcommands: get, set, delete, list.
func runVault(opts globalOpts, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	scanner := bufio.NewScanner(stdin)

	switch args[0] {
	case "set":
		return vaultSet(opts.vaultPath, args[1:], scanner, stderr)
	case "get":
		return vaultGet(opts.vaultPath, args[1:], scanner, stdout, stderr)
	case "delete":
		return vaultDelete(opts.vaultPath, args[1:], scanner, stderr)
	case "list":
		return vaultList(opts.vaultPath, args[1:], scanner, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "vault: unknown subcommand %q\n", args[0])
		printVaultUsage(stderr)
		return 1
	}
}

func vaultSet(path string, args []string, scanner *bufio.Scanner, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "Usage: botwire vault set <key>")
		return 1
	}
	key := args[0]

	passphrase, err := readPassphrase(scanner, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	value, err := readValue(scanner, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	v, err := vaultOpenOrCreate(passphrase, path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", vaultUserError(err))
		return 1
	}
	if err := v.Set(key, value); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	log.Info().Str("component", "vault-cli").Str("operation", "set").Str("key", key).Msg("secret stored")
	fmt.Fprintf(stderr, "Secret stored: %s\n", key)
	return 0
}

func vaultGet(path string, args []string, scanner *bufio.Scanner, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "Usage: botwire vault get <key>")
		return 1
	}
	key := args[0]

	v, code := unlock(path, scanner, stderr)
	if v == nil {
		return code
	}
	value, err := v.Get(key)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", keyError(key, err))
		return 1
	}
	fmt.Fprintln(stdout, value)
	return 0
}

func vaultDelete(path string, args []string, scanner *bufio.Scanner, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "Usage: botwire vault delete <key>")
		return 1
	}
	key := args[0]

	v, code := unlock(path, scanner, stderr)
	if v == nil {
		return code
	}
	if err := v.Delete(key); err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", keyError(key, err))
		return 1
	}
	fmt.Fprintf(stderr, "Secret deleted: %s\n", key)
	return 0
}

func vaultList(path string, args []string, scanner *bufio.Scanner, stdout, stderr io.Writer) int {
	if len(args) != 0 {
		fmt.Fprintln(stderr, "Usage: botwire vault list")
		return 1
	}

	v, code := unlock(path, scanner, stderr)
	if v == nil {
		return code
	}
	keys := v.List()
	for _, k := range keys {
		fmt.Fprintln(stdout, k)
	}
	log.Debug().Str("component", "vault-cli").Str("operation", "list").Int("count", len(keys)).Msg("vault listed")
	return 0
}

// unlock prompts for the passphrase and opens the vault at path. On
// failure it reports to stderr and returns a nil vault with exit code 1.
func unlock(path string, scanner *bufio.Scanner, stderr io.Writer) (*vault.Vault, int) {
	passphrase, err := readPassphrase(scanner, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return nil, 1
	}
	v, err := openVault(passphrase, path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", vaultUserError(err))
		return nil, 1
	}
	return v, 0
}

// openVault loads an existing vault and explains how to create a missing one.
func openVault(passphrase, path string) (*vault.Vault, error) {
	v, err := vaultOpen(passphrase, path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("vault not found at %s (run 'botwire init' or 'botwire vault set' first): %w", path, err)
	}
	return v, err
}

// readValue prompts on w and reads a line from the scanner.
func readValue(scanner *bufio.Scanner, w io.Writer) (string, error) {
	fmt.Fprint(w, "Value: ")
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("reading value: %w", err)
		}
		return "", fmt.Errorf("reading value: unexpected end of input")
	}
	return strings.TrimRight(scanner.Text(), "\r\n"), nil
}

// vaultUserError returns a user-friendly error message.
func vaultUserError(err error) string {
	switch {
	case errors.Is(err, vault.ErrWrongPassphrase):
		return "wrong passphrase"
	case errors.Is(err, vault.ErrDecrypt):
		return "corrupted vault entry"
	}
	return err.Error()
}

func keyError(key string, err error) string {
	if errors.Is(err, vault.ErrKeyNotFound) {
		return fmt.Sprintf("key %q not found", key)
	}
	return vaultUserError(err)
}

func printVaultUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: botwire vault <subcommand>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Subcommands:")
	fmt.Fprintln(w, "  set <key>     Store a secret (bot_token, webhook_secret, ...)")
	fmt.Fprintln(w, "  get <key>     Retrieve a secret")
	fmt.Fprintln(w, "  delete <key>  Delete a secret")
	fmt.Fprintln(w, "  list          List all secret keys")
}
