package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/edouard/botwire/internal/schema"
)

// runMethods lists the registry's methods, or details one of them.
func runMethods(opts globalOpts, args []string, stdout, stderr io.Writer) int {
	if len(args) > 1 {
		fmt.Fprintln(stderr, "Usage: botwire methods [name]")
		return 1
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	reg, err := loadRegistry(cfg.SchemaFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if len(args) == 1 {
		m, err := reg.Lookup(args[0])
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "%s -> %s\n", m.Name, m.Returns)
		for _, p := range m.Params {
			fmt.Fprintf(stdout, "  %s\n", paramDecl(p))
		}
		return 0
	}

	for _, name := range reg.Methods() {
		m, _ := reg.Lookup(name)
		fmt.Fprintln(stdout, signature(m))
	}
	return 0
}

// signature renders m as "name(a: T, b?: U) -> R".
func signature(m *schema.Method) string {
	parts := make([]string, len(m.Params))
	for i, p := range m.Params {
		parts[i] = paramDecl(p)
	}
	return fmt.Sprintf("%s(%s) -> %s", m.Name, strings.Join(parts, ", "), m.Returns)
}

func paramDecl(p schema.Param) string {
	opt := ""
	if !p.Required {
		opt = "?"
	}
	return fmt.Sprintf("%s%s: %s", p.Name, opt, p.Type)
}
