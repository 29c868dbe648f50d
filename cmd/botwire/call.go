package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/edouard/botwire/internal/proxy"
	"github.com/edouard/botwire/internal/schema"
	"github.com/edouard/botwire/internal/transport"
)

// runCall invokes an arbitrary method with key=value arguments and prints
// the result as JSON.
func runCall(opts globalOpts, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "Usage: botwire call <method> [key=value ...]")
		fmt.Fprintln(stderr, "  Values are parsed as JSON when valid, otherwise sent as strings.")
		fmt.Fprintln(stderr, "  key=@path uploads the file at path for parameters that accept files.")
		return 1
	}

	a, err := setup(opts, stdin, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer shutdownOTel(a)

	m, err := a.reg.Lookup(args[0])
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	params, files, err := parseCallArgs(a.reg, m, args[1:])
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ctx, stop := signalContext()
	defer stop()

	d := a.bot.Dispatcher()
	res, err := d.Call(ctx, m.Name, params)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", callError(err))
		return 1
	}
	out, err := d.Marshaller().Encode(m.Returns, res)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, out, "", "  "); err != nil {
		buf.Reset()
		buf.Write(out)
	}
	fmt.Fprintln(stdout, buf.String())
	return 0
}

// parseCallArgs turns key=value pairs into dispatcher arguments. Opened
// upload files are returned so the caller can close them.
func parseCallArgs(reg *schema.Registry, m *schema.Method, pairs []string) (map[string]any, []*os.File, error) {
	args := make(map[string]any, len(pairs))
	var files []*os.File
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, files, fmt.Errorf("argument %q is not key=value", pair)
		}
		p, known := m.Param(key)
		switch {
		case !known:
			// Left for the marshaller to reject.
			args[key] = parseValue(raw)
		case strings.HasPrefix(raw, "@") && acceptsFile(reg, p.Type):
			f, err := os.Open(raw[1:])
			if err != nil {
				return nil, files, fmt.Errorf("%s: %w", key, err)
			}
			files = append(files, f)
			args[key] = f
		case isString(reg, p.Type):
			args[key] = raw
		default:
			args[key] = parseValue(raw)
		}
	}
	return args, files, nil
}

// parseValue decodes raw as JSON, keeping numbers exact, and falls back
// to the raw string.
func parseValue(raw string) any {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return raw
	}
	return v
}

func acceptsFile(reg *schema.Registry, t *schema.Type) bool {
	t = reg.Expand(t)
	if t.Kind == schema.KindFile {
		return true
	}
	if t.Kind == schema.KindUnion {
		for _, m := range t.Members {
			if m.Kind == schema.KindFile {
				return true
			}
		}
	}
	return false
}

func isString(reg *schema.Registry, t *schema.Type) bool {
	t = reg.Expand(t)
	return t.Kind == schema.KindScalar && t.Scalar == schema.ScalarString
}

// callError renders dispatch failures for a terminal.
func callError(err error) string {
	var te *proxy.TeleError
	if errors.As(err, &te) {
		msg := fmt.Sprintf("%s (error_code %d)", te.Description, te.ErrorCode())
		if d := te.RetryAfter(); d > 0 {
			msg += fmt.Sprintf(", retry after %s", d)
		}
		if id := te.MigrateToChatID(); id != 0 {
			msg += fmt.Sprintf(", chat migrated to %d", id)
		}
		return msg
	}
	var se *transport.StatusError
	if errors.As(err, &se) {
		log.Debug().Str("component", "cmd").Str("operation", "call").Str("body", string(se.Body)).Msg("non-API response")
	}
	return err.Error()
}
