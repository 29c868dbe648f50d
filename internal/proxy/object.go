package proxy

import "sort"

// Object is a dynamic instance of a named model. Fields is keyed by the
// caller-facing field name ("from_", not "from"). A field is set if and
// only if its key is present: unset optional fields are omitted from the
// wire, while a field explicitly set to nil is sent as null.
type Object struct {
	Type   string
	Fields map[string]any
}

// NewObject returns an empty instance of the model typ.
func NewObject(typ string) *Object {
	return &Object{Type: typ, Fields: make(map[string]any)}
}

// Set sets a field and returns the object for chaining.
func (o *Object) Set(name string, v any) *Object {
	if o.Fields == nil {
		o.Fields = make(map[string]any)
	}
	o.Fields[name] = v
	return o
}

// Get returns a field value and whether it is set.
func (o *Object) Get(name string) (any, bool) {
	v, ok := o.Fields[name]
	return v, ok
}

// Unset removes a field.
func (o *Object) Unset(name string) {
	delete(o.Fields, name)
}

// Names returns the sorted names of the set fields.
func (o *Object) Names() []string {
	names := make([]string, 0, len(o.Fields))
	for k := range o.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// IntField returns an integer field, or zero when unset or of another type.
func (o *Object) IntField(name string) int64 {
	v, _ := o.Fields[name].(int64)
	return v
}

// StringField returns a string field, or "" when unset or of another type.
func (o *Object) StringField(name string) string {
	v, _ := o.Fields[name].(string)
	return v
}

// ObjectField returns a nested model field, or nil.
func (o *Object) ObjectField(name string) *Object {
	v, _ := o.Fields[name].(*Object)
	return v
}
