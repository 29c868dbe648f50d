package main

import (
	"fmt"
	"io"
	"os"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

func main() {
	os.Exit(run(os.Args, os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts, rest, err := parseGlobalFlags(args[1:])
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if len(rest) == 0 {
		printUsage(stderr)
		return 1
	}
	switch rest[0] {
	case "version":
		fmt.Fprintln(stdout, Version)
		return 0
	case "init":
		return runInit(opts, stdin, stderr)
	case "vault":
		if len(rest) < 2 {
			printVaultUsage(stderr)
			return 1
		}
		return runVault(opts, rest[1:], stdin, stdout, stderr)
	case "methods":
		return runMethods(opts, rest[1:], stdout, stderr)
	case "call":
		return runCall(opts, rest[1:], stdin, stdout, stderr)
	case "echo":
		return runEcho(opts, stdin, stderr)
	case "webhook":
		return runWebhook(opts, stdin, stderr)
	default:
		printUsage(stderr)
		return 1
	}
}

// globalOpts holds the flags accepted by every command.
type globalOpts struct {
	configPath     string
	configExplicit bool
	vaultPath      string
}

// parseGlobalFlags extracts --config and --vault from anywhere in args and
// returns the remaining arguments in order.
func parseGlobalFlags(args []string) (globalOpts, []string, error) {
	opts := globalOpts{configPath: defaultConfigPath, vaultPath: defaultVaultPath}
	rest := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			if i+1 >= len(args) {
				return opts, nil, fmt.Errorf("--config requires a path argument")
			}
			opts.configPath = args[i+1]
			opts.configExplicit = true
			i++
		case "--vault":
			if i+1 >= len(args) {
				return opts, nil, fmt.Errorf("--vault requires a path argument")
			}
			opts.vaultPath = args[i+1]
			i++
		default:
			rest = append(rest, args[i])
		}
	}
	return opts, rest, nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: botwire [--config path] [--vault path] <command>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  init                        Write a config file and a vault with the bot token")
	fmt.Fprintln(w, "  vault                       Manage encrypted secrets")
	fmt.Fprintln(w, "  methods [name]              List API methods, or show one signature")
	fmt.Fprintln(w, "  call <method> [k=v ...]     Invoke any API method (@path uploads a file)")
	fmt.Fprintln(w, "  echo                        Run an echo bot using long polling")
	fmt.Fprintln(w, "  webhook                     Run an echo bot receiving updates by webhook")
	fmt.Fprintln(w, "  version                     Print version")
}
