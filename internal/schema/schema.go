// Package schema holds the nested schema mapping and loads it from YAML or
// JSON documents. Field order is preserved: it decides column order.
package schema

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"genesynth/internal/fault"
)

// Node is one field of the schema.
type Node struct {
	Type        TypeRef        `yaml:"type"`
	Metadata    map[string]any `yaml:"metadata,omitempty"`
	Constraints any            `yaml:"constraints,omitempty"`
	Properties  Properties     `yaml:"properties,omitempty"`
}

// TypeRef is a type name, optionally decorated as "array of": "[integer]"
// or [integer].
type TypeRef struct {
	Name  string
	Array bool
}

func (t TypeRef) String() string {
	if t.Array {
		return "[" + t.Name + "]"
	}
	return t.Name
}

func (t *TypeRef) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*t = ParseTypeRef(value.Value)
		return nil
	case yaml.SequenceNode:
		if len(value.Content) != 1 || value.Content[0].Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: list type must hold exactly one type name", value.Line)
		}
		*t = TypeRef{Name: strings.TrimSpace(value.Content[0].Value), Array: true}
		return nil
	}
	return fmt.Errorf("line %d: type must be a name or a one-element list", value.Line)
}

func (t TypeRef) MarshalYAML() (any, error) { return t.String(), nil }

// ParseTypeRef reads the bracketed form.
func ParseTypeRef(s string) TypeRef {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		return TypeRef{Name: strings.TrimSpace(s[1 : len(s)-1]), Array: true}
	}
	return TypeRef{Name: s}
}

// Property is a named child field.
type Property struct {
	Name string
	Node *Node
}

// Properties keeps declaration order, which a plain map would lose.
type Properties []Property

// CheckFieldName rejects names that cannot be a path segment: empty names,
// dots (the path separator), file path separators and NUL.
func CheckFieldName(name string) error {
	if name == "" || strings.ContainsAny(name, "./\\\x00") {
		return fmt.Errorf("invalid field name %q", name)
	}
	return nil
}

func (p *Properties) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: properties must be a mapping", value.Line)
	}
	out := make(Properties, 0, len(value.Content)/2)
	seen := make(map[string]bool, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		key := value.Content[i].Value
		if err := CheckFieldName(key); err != nil {
			return fmt.Errorf("line %d: %w", value.Content[i].Line, err)
		}
		if seen[key] {
			return fmt.Errorf("line %d: duplicate field %q", value.Content[i].Line, key)
		}
		seen[key] = true
		var n Node
		if err := value.Content[i+1].Decode(&n); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		out = append(out, Property{Name: key, Node: &n})
	}
	*p = out
	return nil
}

func (p Properties) MarshalYAML() (any, error) {
	m := &yaml.Node{Kind: yaml.MappingNode}
	for _, prop := range p {
		var v yaml.Node
		if err := v.Encode(prop.Node); err != nil {
			return nil, err
		}
		m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: prop.Name}, &v)
	}
	return m, nil
}

// Get returns the named property.
func (p Properties) Get(name string) (*Node, bool) {
	for _, prop := range p {
		if prop.Name == name {
			return prop.Node, true
		}
	}
	return nil, false
}

// Size reads metadata.size, returning 0 when absent.
func (n *Node) Size() (int, error) {
	v, ok := n.Metadata["size"]
	if !ok || v == nil {
		return 0, nil
	}
	switch s := v.(type) {
	case int:
		return s, nil
	case int64:
		return int(s), nil
	case uint64:
		return int(s), nil
	case float64:
		if s == float64(int(s)) {
			return int(s), nil
		}
	}
	return 0, fmt.Errorf("metadata.size must be an integer, got %v", v)
}

// Parse decodes a YAML (or JSON, which YAML accepts) schema document.
func Parse(data []byte) (*Node, error) {
	return Decode(bytes.NewReader(data))
}

// Decode reads a schema document and checks the root shape.
func Decode(r io.Reader) (*Node, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var root Node
	if err := dec.Decode(&root); err != nil {
		if err == io.EOF {
			return nil, fault.Configf("", "empty schema")
		}
		return nil, fault.Wrap(fault.ErrConfig, "", fmt.Errorf("decoding schema: %w", err))
	}
	if err := root.validateRoot(); err != nil {
		return nil, err
	}
	return &root, nil
}

// Load reads the schema file at path.
func Load(path string) (*Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fault.Wrap(fault.ErrConfig, "", fmt.Errorf("opening schema: %w", err))
	}
	defer f.Close()
	return Decode(f)
}

// Marshal renders the schema back to YAML.
func Marshal(n *Node) ([]byte, error) {
	return yaml.Marshal(n)
}

func (n *Node) validateRoot() error {
	if n.Type.Name == "" {
		return fault.Configf("", "root type is required")
	}
	size, err := n.Size()
	if err != nil {
		return fault.Configf("", "%v", err)
	}
	if size <= 0 {
		return fault.Configf("", "root metadata.size must be a positive integer")
	}
	return nil
}
