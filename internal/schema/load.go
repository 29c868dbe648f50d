package schema

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// document is the YAML layout of a schema file:
//
//	models:
//	  Chat:
//	    - {name: id, type: Integer, required: true}
//	unions:
//	  ReactionType: [ReactionTypeEmoji, ReactionTypeCustomEmoji]
//	methods:
//	  getChat:
//	    returns: Chat
//	    params:
//	      - {name: chat_id, type: Integer or String, required: true}
//
// A method may give its reference prose under "description" instead of
// "returns"; the result type is then derived with ParseReturns.
type document struct {
	Models  map[string][]fieldDoc `yaml:"models"`
	Unions  map[string][]string   `yaml:"unions"`
	Methods map[string]methodDoc  `yaml:"methods"`
}

type fieldDoc struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Required bool   `yaml:"required"`
	Wire     string `yaml:"wire,omitempty"`
}

type methodDoc struct {
	Returns     string     `yaml:"returns"`
	Description string     `yaml:"description"`
	Params      []fieldDoc `yaml:"params"`
}

// LoadYAML reads a schema document and builds a Registry from it.
func LoadYAML(r io.Reader) (*Registry, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("schema: load: decode: %w", err)
	}

	b := NewBuilder()
	for _, name := range sortedKeys(doc.Models) {
		fields := make([]Field, 0, len(doc.Models[name]))
		for _, fd := range doc.Models[name] {
			t, err := ParseType(fd.Type)
			if err != nil {
				return nil, fmt.Errorf("schema: load: model %q: field %q: %w", name, fd.Name, err)
			}
			f := NewField(fd.Name, t, fd.Required)
			if fd.Wire != "" {
				f = Field{Name: fd.Name, Wire: fd.Wire, Type: t, Required: fd.Required}
			}
			fields = append(fields, f)
		}
		b.Model(name, fields...)
	}
	for _, name := range sortedKeys(doc.Unions) {
		b.Union(name, doc.Unions[name]...)
	}
	for _, name := range sortedKeys(doc.Methods) {
		md := doc.Methods[name]
		var returns *Type
		switch {
		case md.Returns != "":
			t, err := ParseType(md.Returns)
			if err != nil {
				return nil, fmt.Errorf("schema: load: method %q: result: %w", name, err)
			}
			returns = t
		case md.Description != "":
			returns = ParseReturns(md.Description)
		}
		params := make([]Param, 0, len(md.Params))
		for _, pd := range md.Params {
			t, err := ParseType(pd.Type)
			if err != nil {
				return nil, fmt.Errorf("schema: load: method %q: parameter %q: %w", name, pd.Name, err)
			}
			params = append(params, Param{Name: pd.Name, Type: t, Required: pd.Required})
		}
		b.Method(name, returns, params...)
	}
	return b.Build()
}

// LoadFile reads a schema document from path.
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("schema: load: %w", err)
	}
	defer f.Close()
	return LoadYAML(f)
}
