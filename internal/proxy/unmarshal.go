package proxy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/edouard/botwire/internal/schema"
)

// Unmarshaller decodes response envelopes into values of the declared
// result type. Models decode to *Object, lists to []any, integers to int64
// and floats to float64.
type Unmarshaller struct {
	reg *schema.Registry
}

// NewUnmarshaller creates an Unmarshaller resolving model names in reg.
func NewUnmarshaller(reg *schema.Registry) *Unmarshaller {
	return &Unmarshaller{reg: reg}
}

// Unmarshal discriminates success from failure and coerces the result.
// An envelope with "ok": false yields a *TeleError.
func (u *Unmarshaller) Unmarshal(rt *schema.Type, env *Envelope) (any, error) {
	if !env.OK {
		return nil, &TeleError{
			Description: env.Description,
			Code:        env.ErrorCode,
			Parameters:  env.Parameters,
		}
	}
	var raw any
	if len(env.Result) > 0 {
		dec := json.NewDecoder(bytes.NewReader(env.Result))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, &DecodeError{Path: "result", Msg: "invalid JSON", Err: err}
		}
	}
	return u.Coerce(rt, raw, "result")
}

// UnmarshalBody decodes a raw response body, then unmarshals it.
func (u *Unmarshaller) UnmarshalBody(rt *schema.Type, body []byte) (any, error) {
	env, err := DecodeEnvelope(body)
	if err != nil {
		return nil, err
	}
	return u.Unmarshal(rt, env)
}

// Coerce converts an untyped JSON value (as produced by encoding/json,
// with or without UseNumber) into t. Path prefixes error locations.
func (u *Unmarshaller) Coerce(t *schema.Type, raw any, path string) (any, error) {
	t = u.reg.Expand(t)
	if t.Kind == schema.KindAny {
		return normalize(raw), nil
	}
	if raw == nil {
		return nil, decodeErrorf(path, "unexpected null for %s", t)
	}
	switch t.Kind {
	case schema.KindScalar:
		return coerceScalar(t, raw, path)
	case schema.KindNamed:
		model, err := u.reg.Model(t.Name)
		if err != nil {
			return nil, &DecodeError{Path: path, Msg: "unresolved type", Err: err}
		}
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, decodeErrorf(path, "expected %s object, got %s", t.Name, jsonKind(raw))
		}
		return u.object(model, obj, path)
	case schema.KindList:
		arr, ok := raw.([]any)
		if !ok {
			return nil, decodeErrorf(path, "expected array, got %s", jsonKind(raw))
		}
		out := make([]any, len(arr))
		for i, el := range arr {
			v, err := u.Coerce(t.Elem, el, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case schema.KindUnion:
		return u.union(t, raw, path)
	case schema.KindFile:
		return nil, decodeErrorf(path, "byte streams cannot be decoded")
	}
	return nil, decodeErrorf(path, "unsupported type kind %d", t.Kind)
}

// union resolves a JSON boolean to the Bool member when there is one;
// any other value is tried against the members in declaration order.
// Objects first go to the models that know every one of their keys, so a
// member that would silently drop fields is only a fallback.
func (u *Unmarshaller) union(t *schema.Type, raw any, path string) (any, error) {
	if b, ok := raw.(bool); ok && t.Has(schema.ScalarBool) {
		return b, nil
	}
	if obj, ok := raw.(map[string]any); ok {
		for _, mt := range t.Members {
			if !u.covers(mt, obj) {
				continue
			}
			if v, err := u.Coerce(mt, raw, path); err == nil {
				return v, nil
			}
		}
	}
	for _, mt := range t.Members {
		if mt.Kind == schema.KindScalar && mt.Scalar == schema.ScalarBool {
			continue
		}
		if v, err := u.Coerce(mt, raw, path); err == nil {
			return v, nil
		}
	}
	return nil, decodeErrorf(path, "%s matches none of %s", jsonKind(raw), t)
}

// covers reports whether t is a model declaring every key of obj.
func (u *Unmarshaller) covers(t *schema.Type, obj map[string]any) bool {
	if t.Kind != schema.KindNamed {
		return false
	}
	model, err := u.reg.Model(t.Name)
	if err != nil {
		return false
	}
	for key := range obj {
		if _, ok := model.FieldByWire(key); !ok {
			return false
		}
	}
	return true
}

// object builds a model instance. Unknown keys are ignored so that newer
// API versions keep decoding; null optional fields stay unset.
func (u *Unmarshaller) object(model *schema.Model, raw map[string]any, path string) (*Object, error) {
	o := &Object{Type: model.Name, Fields: make(map[string]any, len(raw))}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		f, ok := model.FieldByWire(key)
		if !ok {
			continue
		}
		fpath := path + "." + key
		val := raw[key]
		if val == nil {
			if f.Required {
				return nil, decodeErrorf(fpath, "required field is null")
			}
			continue
		}
		v, err := u.Coerce(f.Type, val, fpath)
		if err != nil {
			return nil, err
		}
		o.Fields[f.Name] = v
	}
	for _, f := range model.Fields {
		if _, ok := o.Fields[f.Name]; f.Required && !ok {
			return nil, decodeErrorf(path+"."+f.WireName(), "missing required field")
		}
	}
	return o, nil
}

func coerceScalar(t *schema.Type, raw any, path string) (any, error) {
	switch t.Scalar {
	case schema.ScalarInt:
		if i, ok := toInt64(raw); ok {
			return i, nil
		}
	case schema.ScalarFloat:
		if f, ok := toFloat64(raw); ok {
			return f, nil
		}
	case schema.ScalarBool:
		if b, ok := raw.(bool); ok {
			return b, nil
		}
	case schema.ScalarString:
		if s, ok := raw.(string); ok {
			return s, nil
		}
	}
	return nil, decodeErrorf(path, "expected %s, got %s", t, jsonKind(raw))
}

func toInt64(raw any) (int64, bool) {
	switch n := raw.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
	case float64:
		if n == math.Trunc(n) && math.Abs(n) < 1<<63 {
			return int64(n), true
		}
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}

func toFloat64(raw any) (float64, bool) {
	switch n := raw.(type) {
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f, true
		}
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

// normalize replaces json.Number with int64 or float64 throughout v.
func normalize(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case []any:
		for i := range x {
			x[i] = normalize(x[i])
		}
		return x
	case map[string]any:
		for k := range x {
			x[k] = normalize(x[k])
		}
		return x
	}
	return v
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case json.Number, float64, int64, int:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}
