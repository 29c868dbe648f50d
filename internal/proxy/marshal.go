package proxy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"reflect"
	"sort"
	"strconv"

	"github.com/edouard/botwire/internal/schema"
)

// Marshaller turns keyword arguments into form fields and file parts,
// guided by the declared parameter types.
type Marshaller struct {
	reg *schema.Registry
}

// NewMarshaller creates a Marshaller resolving model names in reg.
func NewMarshaller(reg *schema.Registry) *Marshaller {
	return &Marshaller{reg: reg}
}

// Marshal partitions args into textual form fields and byte streams.
// Byte streams (any io.Reader) are passed through untouched and are never
// read or closed here. Structured values are encoded as JSON strings.
func (m *Marshaller) Marshal(method *schema.Method, args map[string]any) (map[string]string, map[string]io.Reader, error) {
	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, ok := method.Param(name); !ok {
			return nil, nil, fmt.Errorf("%s: %w %q", method.Name, ErrUnknownParameter, name)
		}
	}

	fields := make(map[string]string, len(args))
	files := make(map[string]io.Reader)
	for _, p := range method.Params {
		v, ok := args[p.Name]
		if !ok || isNil(v) {
			if p.Required {
				return nil, nil, fmt.Errorf("%s: %w %q", method.Name, ErrMissingRequiredParameter, p.Name)
			}
			continue
		}
		if r, ok := v.(io.Reader); ok {
			files[p.Name] = r
			continue
		}
		tree, err := m.value(p.Type, v, p.Name)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", method.Name, err)
		}
		s, err := formValue(tree)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %s: %w", method.Name, p.Name, err)
		}
		fields[p.Name] = s
	}
	return fields, files, nil
}

// Encode returns the canonical JSON document of v declared as t.
func (m *Marshaller) Encode(t *schema.Type, v any) ([]byte, error) {
	tree, err := m.value(t, v, "value")
	if err != nil {
		return nil, err
	}
	return json.Marshal(tree)
}

// formValue renders an encoded value as a form field: scalars in their
// textual form, everything else as JSON.
func formValue(tree any) (string, error) {
	switch x := tree.(type) {
	case string:
		return x, nil
	case bool:
		return strconv.FormatBool(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	}
	data, err := json.Marshal(tree)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// value converts v into a JSON-ready tree of map[string]any, []any and
// scalars according to t.
func (m *Marshaller) value(t *schema.Type, v any, path string) (any, error) {
	t = m.reg.Expand(t)
	if isNil(v) {
		return nil, nil
	}
	switch t.Kind {
	case schema.KindScalar:
		return scalar(t, v, path)
	case schema.KindNamed:
		model, err := m.reg.Model(t.Name)
		if err != nil {
			return nil, marshalErrorf(path, t, "%v", err)
		}
		return m.object(model, v, path)
	case schema.KindList:
		return m.list(t, v, path)
	case schema.KindUnion:
		return m.union(t, v, path)
	case schema.KindFile:
		return nil, marshalErrorf(path, t, "byte streams are only accepted as top-level arguments, got %T", v)
	case schema.KindAny:
		return m.anyValue(v, path)
	}
	return nil, marshalErrorf(path, t, "unsupported type kind %d", t.Kind)
}

func scalar(t *schema.Type, v any, path string) (any, error) {
	if n, ok := v.(json.Number); ok {
		switch t.Scalar {
		case schema.ScalarInt:
			if i, err := n.Int64(); err == nil {
				return i, nil
			}
		case schema.ScalarFloat:
			if f, err := n.Float64(); err == nil {
				return f, nil
			}
		}
		return nil, marshalErrorf(path, t, "cannot use number %s", n)
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	switch t.Scalar {
	case schema.ScalarInt:
		switch {
		case rv.CanInt():
			return rv.Int(), nil
		case rv.CanUint():
			if u := rv.Uint(); u <= math.MaxInt64 {
				return int64(u), nil
			}
			return nil, marshalErrorf(path, t, "integer overflow")
		case rv.CanFloat():
			if f := rv.Float(); f == math.Trunc(f) && math.Abs(f) < 1<<63 {
				return int64(f), nil
			}
		}
	case schema.ScalarFloat:
		switch {
		case rv.CanFloat():
			return rv.Float(), nil
		case rv.CanInt():
			return float64(rv.Int()), nil
		case rv.CanUint():
			return float64(rv.Uint()), nil
		}
	case schema.ScalarBool:
		if rv.Kind() == reflect.Bool {
			return rv.Bool(), nil
		}
	case schema.ScalarString:
		if rv.Kind() == reflect.String {
			return rv.String(), nil
		}
	}
	return nil, marshalErrorf(path, t, "cannot use %T", v)
}

func (m *Marshaller) list(t *schema.Type, v any, path string) (any, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, marshalErrorf(path, t, "cannot use %T", v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		el, err := m.value(t.Elem, rv.Index(i).Interface(), fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		out[i] = el
	}
	return out, nil
}

func (m *Marshaller) union(t *schema.Type, v any, path string) (any, error) {
	// An Object names its model, which settles the choice.
	if o := asObject(v); o != nil && o.Type != "" {
		for _, mt := range t.Members {
			if m.admits(mt, o.Type) {
				return m.value(mt, v, path)
			}
		}
		return nil, marshalErrorf(path, t, "object of type %q is not a member", o.Type)
	}
	for _, mt := range t.Members {
		if out, err := m.value(mt, v, path); err == nil {
			return out, nil
		}
	}
	return nil, marshalErrorf(path, t, "%T matches no member", v)
}

// admits reports whether t is the model called name or a named union
// containing it.
func (m *Marshaller) admits(t *schema.Type, name string) bool {
	if t.Kind == schema.KindNamed && t.Name == name {
		return true
	}
	t = m.reg.Expand(t)
	if t.Kind != schema.KindUnion {
		return false
	}
	for _, mt := range t.Members {
		if m.admits(mt, name) {
			return true
		}
	}
	return false
}

func (m *Marshaller) object(model *schema.Model, v any, path string) (map[string]any, error) {
	var fields map[string]any
	if o := asObject(v); o != nil {
		if o.Type != "" && o.Type != model.Name {
			return nil, marshalErrorf(path, schema.Named(model.Name), "cannot use object of type %q", o.Type)
		}
		fields = o.Fields
	} else {
		var err error
		if fields, err = fieldsOf(v); err != nil {
			return nil, marshalErrorf(path, schema.Named(model.Name), "%v", err)
		}
	}

	out := make(map[string]any, len(fields))
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		f, ok := model.Field(key)
		if !ok {
			f, ok = model.FieldByWire(key)
		}
		if !ok {
			return nil, marshalErrorf(path+"."+key, schema.Named(model.Name), "unknown field")
		}
		fpath := path + "." + f.WireName()
		val := fields[key]
		if isNil(val) {
			if f.Required {
				return nil, marshalErrorf(fpath, f.Type, "required field is null")
			}
			out[f.WireName()] = nil
			continue
		}
		enc, err := m.value(f.Type, val, fpath)
		if err != nil {
			return nil, err
		}
		out[f.WireName()] = enc
	}
	for _, f := range model.Fields {
		if _, ok := out[f.WireName()]; f.Required && !ok {
			return nil, marshalErrorf(path+"."+f.WireName(), f.Type, "missing required field")
		}
	}
	return out, nil
}

func (m *Marshaller) anyValue(v any, path string) (any, error) {
	if o := asObject(v); o != nil {
		model, err := m.reg.Model(o.Type)
		if err != nil {
			return nil, marshalErrorf(path, schema.Any(), "%v", err)
		}
		return m.object(model, o, path)
	}
	if _, ok := v.(io.Reader); ok {
		return nil, marshalErrorf(path, schema.Any(), "byte streams are only accepted as top-level arguments")
	}
	if n, ok := v.(json.Number); ok {
		return n, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
		return m.anyValue(rv.Elem().Interface(), path)
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return scalar(schema.Int(), v, path)
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			el, err := m.anyValue(rv.Index(i).Interface(), fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = el
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, marshalErrorf(path, schema.Any(), "map keys must be strings, got %s", rv.Type().Key())
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			el, err := m.anyValue(iter.Value().Interface(), path+"."+k)
			if err != nil {
				return nil, err
			}
			out[k] = el
		}
		return out, nil
	case reflect.Interface, reflect.Invalid:
		return nil, nil
	}
	// Structs and other values keep their own JSON encoding.
	return v, nil
}

// fieldsOf returns the fields of a map or struct value. Structs are read
// through their JSON encoding, so their tags name the wire keys.
func fieldsOf(v any) (map[string]any, error) {
	if mp, ok := v.(map[string]any); ok {
		return mp, nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = iter.Value().Interface()
		}
		return out, nil
	case reflect.Struct:
		data, err := json.Marshal(rv.Interface())
		if err != nil {
			return nil, err
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		var out map[string]any
		if err := dec.Decode(&out); err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("cannot use %T as a model value", v)
}

func asObject(v any) *Object {
	switch o := v.(type) {
	case *Object:
		return o
	case Object:
		return &o
	}
	return nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
