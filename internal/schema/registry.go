package schema

import (
	"errors"
	"fmt"
	"sort"
)

// Sentinel errors.
var (
	ErrUnknownMethod = errors.New("unknown method")
	ErrUnknownModel  = errors.New("unknown model")
)

// Param is a declared method parameter.
type Param struct {
	Name     string
	Type     *Type
	Required bool
}

// Method is the declared signature of one API method.
type Method struct {
	Name    string
	Params  []Param
	Returns *Type

	index map[string]int
}

// Param returns the parameter called name.
func (m *Method) Param(name string) (*Param, bool) {
	i, ok := m.index[name]
	if !ok {
		return nil, false
	}
	return &m.Params[i], true
}

// Field is a declared model field. Name is the caller-facing name; Wire,
// when set, overrides the name used in JSON documents.
type Field struct {
	Name     string
	Wire     string
	Type     *Type
	Required bool
}

// WireName returns the JSON key of the field.
func (f *Field) WireName() string {
	if f.Wire != "" {
		return f.Wire
	}
	return f.Name
}

// Model is a named data type with a fixed field list.
type Model struct {
	Name   string
	Fields []Field

	byName map[string]int
	byWire map[string]int
}

// Field returns the field whose caller-facing name is name.
func (m *Model) Field(name string) (*Field, bool) {
	i, ok := m.byName[name]
	if !ok {
		return nil, false
	}
	return &m.Fields[i], true
}

// FieldByWire returns the field serialized under the JSON key wire.
func (m *Model) FieldByWire(wire string) (*Field, bool) {
	i, ok := m.byWire[wire]
	if !ok {
		return nil, false
	}
	return &m.Fields[i], true
}

// Registry is the immutable table of methods, models and named unions.
// It is safe for concurrent use.
type Registry struct {
	methods map[string]*Method
	models  map[string]*Model
	unions  map[string]*Type
}

// Lookup returns the method called name.
func (r *Registry) Lookup(name string) (*Method, error) {
	m, ok := r.methods[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, name)
	}
	return m, nil
}

// Model returns the model called name.
func (r *Registry) Model(name string) (*Model, error) {
	m, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	return m, nil
}

// Union returns the members of the named union called name.
func (r *Registry) Union(name string) (*Type, bool) {
	u, ok := r.unions[name]
	return u, ok
}

// Expand replaces a named reference to a union by the union itself.
// Every other type is returned unchanged.
func (r *Registry) Expand(t *Type) *Type {
	if t != nil && t.Kind == KindNamed {
		if u, ok := r.unions[t.Name]; ok {
			return u
		}
	}
	return t
}

// Methods returns the sorted method names.
func (r *Registry) Methods() []string { return sortedKeys(r.methods) }

// Models returns the sorted model names.
func (r *Registry) Models() []string { return sortedKeys(r.models) }

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Builder collects declarations in any order. Build resolves every named
// reference once all declarations are known.
type Builder struct {
	methods []*Method
	models  []*Model
	unions  map[string][]string
	order   []string
	errs    []error
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{unions: make(map[string][]string)}
}

// Model declares a model.
func (b *Builder) Model(name string, fields ...Field) *Builder {
	b.models = append(b.models, &Model{Name: name, Fields: fields})
	return b
}

// Union declares a named union of models.
func (b *Builder) Union(name string, members ...string) *Builder {
	if _, dup := b.unions[name]; dup {
		b.errs = append(b.errs, fmt.Errorf("union %q declared twice", name))
		return b
	}
	b.unions[name] = members
	b.order = append(b.order, name)
	return b
}

// Method declares a method. Required parameters are ordered before
// optional ones, keeping declaration order within each group.
func (b *Builder) Method(name string, returns *Type, params ...Param) *Builder {
	if returns == nil {
		returns = Any()
	}
	ps := append([]Param(nil), params...)
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].Required && !ps[j].Required })
	b.methods = append(b.methods, &Method{Name: name, Params: ps, Returns: returns})
	return b
}

// Build validates the declarations and returns the registry.
func (b *Builder) Build() (*Registry, error) {
	errs := append([]error(nil), b.errs...)
	r := &Registry{
		methods: make(map[string]*Method, len(b.methods)),
		models:  make(map[string]*Model, len(b.models)),
		unions:  make(map[string]*Type, len(b.unions)),
	}

	// Declare everything first.
	for _, m := range b.models {
		if _, dup := r.models[m.Name]; dup {
			errs = append(errs, fmt.Errorf("model %q declared twice", m.Name))
			continue
		}
		if _, clash := b.unions[m.Name]; clash {
			errs = append(errs, fmt.Errorf("%q declared as both model and union", m.Name))
			continue
		}
		m.byName = make(map[string]int, len(m.Fields))
		m.byWire = make(map[string]int, len(m.Fields))
		for i := range m.Fields {
			f := &m.Fields[i]
			if _, dup := m.byName[f.Name]; dup {
				errs = append(errs, fmt.Errorf("model %q: field %q declared twice", m.Name, f.Name))
				continue
			}
			m.byName[f.Name] = i
			m.byWire[f.WireName()] = i
		}
		r.models[m.Name] = m
	}
	for _, name := range b.order {
		members := make([]*Type, len(b.unions[name]))
		for i, mn := range b.unions[name] {
			members[i] = Named(mn)
		}
		r.unions[name] = &Type{Kind: KindUnion, Members: members}
	}
	for _, m := range b.methods {
		if _, dup := r.methods[m.Name]; dup {
			errs = append(errs, fmt.Errorf("method %q declared twice", m.Name))
			continue
		}
		m.index = make(map[string]int, len(m.Params))
		for i, p := range m.Params {
			if _, dup := m.index[p.Name]; dup {
				errs = append(errs, fmt.Errorf("method %q: parameter %q declared twice", m.Name, p.Name))
				continue
			}
			m.index[p.Name] = i
		}
		r.methods[m.Name] = m
	}

	// Then resolve every reference.
	for _, name := range b.order {
		for _, mt := range r.unions[name].Members {
			if _, ok := r.models[mt.Name]; !ok {
				errs = append(errs, fmt.Errorf("union %q: member %w", name, r.unresolved(mt.Name)))
			}
		}
	}
	for _, name := range r.Models() {
		m := r.models[name]
		for _, f := range m.Fields {
			if err := r.resolve(f.Type); err != nil {
				errs = append(errs, fmt.Errorf("model %q: field %q: %w", m.Name, f.Name, err))
			}
		}
	}
	for _, name := range r.Methods() {
		m := r.methods[name]
		for _, p := range m.Params {
			if err := r.resolve(p.Type); err != nil {
				errs = append(errs, fmt.Errorf("method %q: parameter %q: %w", m.Name, p.Name, err))
			}
		}
		if err := r.resolve(m.Returns); err != nil {
			errs = append(errs, fmt.Errorf("method %q: result: %w", m.Name, err))
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("schema: build: %w", errors.Join(errs...))
	}
	return r, nil
}

func (r *Registry) resolve(t *Type) error {
	if t == nil {
		return errors.New("missing type")
	}
	switch t.Kind {
	case KindNamed:
		if _, ok := r.models[t.Name]; ok {
			return nil
		}
		if _, ok := r.unions[t.Name]; ok {
			return nil
		}
		return r.unresolved(t.Name)
	case KindList:
		return r.resolve(t.Elem)
	case KindUnion:
		for _, m := range t.Members {
			if err := r.resolve(m); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Registry) unresolved(name string) error {
	return fmt.Errorf("%w: %q", ErrUnknownModel, name)
}
