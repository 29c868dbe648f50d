package schema

import (
	"fmt"
	"strings"
)

// reserved lists wire names that callers address with a trailing
// underscore; the wire keeps the original spelling.
var reserved = map[string]bool{"from": true}

// Decl parses a declaration of the form "name: Type" or "name?: Type",
// where a trailing "?" marks the field optional.
func Decl(decl string) (name string, t *Type, required bool, err error) {
	name, expr, ok := strings.Cut(decl, ":")
	if !ok {
		return "", nil, false, fmt.Errorf("schema: declaration %q: missing ':'", decl)
	}
	name = strings.TrimSpace(name)
	required = true
	if n, opt := strings.CutSuffix(name, "?"); opt {
		name, required = n, false
	}
	if name == "" {
		return "", nil, false, fmt.Errorf("schema: declaration %q: empty name", decl)
	}
	t, err = ParseType(expr)
	if err != nil {
		return "", nil, false, fmt.Errorf("schema: declaration %q: %w", decl, err)
	}
	return name, t, required, nil
}

// NewField builds a field, aliasing reserved wire names.
func NewField(wire string, t *Type, required bool) Field {
	f := Field{Name: wire, Type: t, Required: required}
	if reserved[wire] {
		f.Name, f.Wire = wire+"_", wire
	}
	return f
}

// F builds a field from a declaration. It panics on malformed input and is
// meant for static tables.
func F(decl string) Field {
	name, t, required, err := Decl(decl)
	if err != nil {
		panic(err)
	}
	return NewField(name, t, required)
}

// P builds a parameter from a declaration. It panics on malformed input and
// is meant for static tables.
func P(decl string) Param {
	name, t, required, err := Decl(decl)
	if err != nil {
		panic(err)
	}
	return Param{Name: name, Type: t, Required: required}
}
