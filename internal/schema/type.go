package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind identifies the shape of a Type.
type Kind int

const (
	KindScalar Kind = iota + 1
	KindNamed
	KindList
	KindUnion
	KindFile
	KindAny
)

// Scalar identifies the primitive carried by a KindScalar type.
type Scalar int

const (
	ScalarInt Scalar = iota + 1
	ScalarFloat
	ScalarBool
	ScalarString
)

// Type describes the declared type of a parameter, a model field or a
// method result. Named types reference models (or unions) by name and are
// resolved through the Registry, so recursive models stay finite.
type Type struct {
	Kind    Kind
	Scalar  Scalar
	Name    string
	Elem    *Type
	Members []*Type
}

var (
	intType    = &Type{Kind: KindScalar, Scalar: ScalarInt}
	floatType  = &Type{Kind: KindScalar, Scalar: ScalarFloat}
	boolType   = &Type{Kind: KindScalar, Scalar: ScalarBool}
	stringType = &Type{Kind: KindScalar, Scalar: ScalarString}
	fileType   = &Type{Kind: KindFile}
	anyType    = &Type{Kind: KindAny}
)

func Int() *Type    { return intType }
func Float() *Type  { return floatType }
func Bool() *Type   { return boolType }
func String() *Type { return stringType }
func File() *Type   { return fileType }
func Any() *Type    { return anyType }

// Named returns a reference to the model or union registered as name.
func Named(name string) *Type { return &Type{Kind: KindNamed, Name: name} }

// List returns the type of an array whose elements are elem.
func List(elem *Type) *Type { return &Type{Kind: KindList, Elem: elem} }

// Union returns the union of members. Nested unions are flattened.
// A union of a single member is that member.
func Union(members ...*Type) *Type {
	flat := make([]*Type, 0, len(members))
	for _, m := range members {
		if m.Kind == KindUnion {
			flat = append(flat, m.Members...)
			continue
		}
		flat = append(flat, m)
	}
	if len(flat) == 1 {
		return flat[0]
	}
	return &Type{Kind: KindUnion, Members: flat}
}

// Has reports whether t is, or is a union containing, the scalar s.
func (t *Type) Has(s Scalar) bool {
	switch t.Kind {
	case KindScalar:
		return t.Scalar == s
	case KindUnion:
		for _, m := range t.Members {
			if m.Kind == KindScalar && m.Scalar == s {
				return true
			}
		}
	}
	return false
}

// String renders t in the documentation grammar accepted by ParseType.
func (t *Type) String() string {
	if t == nil {
		return "Any"
	}
	switch t.Kind {
	case KindScalar:
		switch t.Scalar {
		case ScalarInt:
			return "Integer"
		case ScalarFloat:
			return "Float"
		case ScalarBool:
			return "Boolean"
		case ScalarString:
			return "String"
		}
	case KindNamed:
		return t.Name
	case KindList:
		return "Array of " + t.Elem.String()
	case KindUnion:
		parts := make([]string, len(t.Members))
		for i, m := range t.Members {
			parts[i] = m.String()
		}
		return strings.Join(parts, " or ")
	case KindFile:
		return "InputFile"
	case KindAny:
		return "Any"
	}
	return fmt.Sprintf("Type(%d)", t.Kind)
}

var (
	identRe     = regexp.MustCompile(`^[A-Z][A-Za-z0-9]*$`)
	listSepRe   = regexp.MustCompile(`\s*,\s*|\s+and\s+|\s+or\s+`)
	unionSepStr = " or "
)

// ParseType parses a type expression written the way the Bot API reference
// writes them: "Integer", "Boolean", "True", "String", "Float",
// "InputFile", "Array of X", "Array of Array of X", "X or Y" and model
// names.
func ParseType(expr string) (*Type, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("schema: parse type: empty expression")
	}
	if rest, ok := strings.CutPrefix(expr, "Array of "); ok {
		// Inside arrays the reference also separates members with commas
		// and "and" ("Array of InputMediaAudio, InputMediaDocument and ...").
		parts := listSepRe.Split(rest, -1)
		if len(parts) == 1 || strings.HasPrefix(rest, "Array of ") {
			elem, err := ParseType(rest)
			if err != nil {
				return nil, err
			}
			return List(elem), nil
		}
		members, err := parseMembers(parts)
		if err != nil {
			return nil, err
		}
		return List(Union(members...)), nil
	}
	if strings.Contains(expr, unionSepStr) {
		members, err := parseMembers(strings.Split(expr, unionSepStr))
		if err != nil {
			return nil, err
		}
		return Union(members...), nil
	}
	return parseAtom(expr)
}

func parseMembers(parts []string) ([]*Type, error) {
	members := make([]*Type, 0, len(parts))
	for _, p := range parts {
		t, err := ParseType(p)
		if err != nil {
			return nil, err
		}
		members = append(members, t)
	}
	return members, nil
}

func parseAtom(s string) (*Type, error) {
	switch s {
	case "Integer", "Int":
		return Int(), nil
	case "Float", "Float number":
		return Float(), nil
	case "Boolean", "True", "False":
		return Bool(), nil
	case "String":
		return String(), nil
	case "InputFile":
		return File(), nil
	case "Any":
		return Any(), nil
	}
	if !identRe.MatchString(s) {
		return nil, fmt.Errorf("schema: parse type: invalid type name %q", s)
	}
	return Named(s), nil
}

// MustParseType is like ParseType but panics on error.
func MustParseType(expr string) *Type {
	t, err := ParseType(expr)
	if err != nil {
		panic(err)
	}
	return t
}

var (
	returnsStringRe = regexp.MustCompile(`eturns[\w\s]+as String on success`)
	returnsArrayRes = []*regexp.Regexp{
		regexp.MustCompile(`eturns an Array of (\w+)`),
		regexp.MustCompile(`success, an array of (\w+)[\w\s]+returned`),
	}
	returnsObjectRes = []*regexp.Regexp{
		regexp.MustCompile(`eturns a ([A-Z]\w+) object`),
		regexp.MustCompile(`success,[\w\s]+ ([A-Z]\w+)[\w\s]+is returned`),
		regexp.MustCompile(`eturns[\w\s]+ as a? ?([A-Z]\w+) object`),
		regexp.MustCompile(`eturns the ([A-Z]\w+) [\w\s]+on success`),
		regexp.MustCompile(`eturns the[\w\s]+([A-Z]\w+) on success`),
		regexp.MustCompile(`eturns ([A-Z]\w+) on success`),
		regexp.MustCompile(`eturns[\w\s]+in form of a ([A-Z]\w+) object`),
	}
)

// ParseReturns derives a method's result type from the prose of its
// reference entry. Descriptions that match no known phrase yield Any.
func ParseReturns(description string) *Type {
	switch {
	case strings.Contains(description, "Returns True on success"),
		strings.Contains(description, "On success, True is returned"):
		return Bool()
	case strings.Contains(description, "Message is returned, otherwise True is returned"):
		return Union(Named("Message"), Bool())
	case returnsStringRe.MatchString(description):
		return String()
	}
	for _, re := range returnsArrayRes {
		if m := re.FindStringSubmatch(description); m != nil {
			name := m[1]
			if name == "Messages" {
				name = "Message"
			}
			return List(Named(name))
		}
	}
	for _, re := range returnsObjectRes {
		if m := re.FindStringSubmatch(description); m != nil {
			if m[1] == "Int" {
				return Int()
			}
			return Named(m[1])
		}
	}
	return Any()
}
