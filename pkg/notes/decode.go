package notes

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// Format is a serialisation format for documents.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// ParseFormat resolves a format name. "yml" is accepted for YAML.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

//go:embed document.schema.json
var schemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func documentSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	})
	return schema, schemaErr
}

// Decoder reads documents from JSON, YAML or TOML.
type Decoder struct {
	// ValidateSchema checks the raw document against the embedded JSON Schema
	// before conversion.
	ValidateSchema bool
	// NewID generates ids for blocks that have none. Defaults to uuid.NewString.
	NewID func() string
}

// Decode reads a document with schema validation enabled.
func Decode(data []byte, format Format) (Document, error) {
	return (&Decoder{ValidateSchema: true}).Decode(data, format)
}

// Decode parses data into a Document. The input is either a list of blocks or
// an object with "title" and "blocks". Block ids may be strings or numbers;
// missing ids are generated and a missing order defaults to the block's index.
func (d *Decoder) Decode(data []byte, format Format) (Document, error) {
	raw, err := unmarshalGeneric(data, format)
	if err != nil {
		return Document{}, err
	}
	canonicalTypeTags(raw)

	if d.ValidateSchema {
		if err := validateRaw(raw); err != nil {
			return Document{}, err
		}
	}

	doc, err := d.build(raw)
	if err != nil {
		return Document{}, err
	}
	if err := doc.Validate(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func unmarshalGeneric(data []byte, format Format) (any, error) {
	var raw any
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%w: json: %v", ErrInvalidDocument, err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: yaml: %v", ErrInvalidDocument, err)
		}
	case FormatTOML:
		var table map[string]any
		if _, err := toml.Decode(string(data), &table); err != nil {
			return nil, fmt.Errorf("%w: toml: %v", ErrInvalidDocument, err)
		}
		raw = table
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: empty %s document", ErrInvalidDocument, format)
	}
	return normalize(raw), nil
}

// normalize rewrites decoder-specific containers (TOML table arrays, YAML
// maps with non-string keys) into []any and map[string]any.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = normalize(e)
		}
		return t
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[fmt.Sprint(k)] = normalize(e)
		}
		return m
	case []map[string]any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case []any:
		for i, e := range t {
			t[i] = normalize(e)
		}
		return t
	default:
		return v
	}
}

// canonicalTypeTags lowercases and trims every block's type tag in place so
// schema validation applies the same rule as ParseBlockType.
func canonicalTypeTags(raw any) {
	items, _ := raw.([]any)
	if m, ok := raw.(map[string]any); ok {
		items, _ = m["blocks"].([]any)
	}
	for _, item := range items {
		block, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if tag, ok := block["type"].(string); ok {
			block["type"] = strings.ToLower(strings.TrimSpace(tag))
		}
	}
}

func validateRaw(raw any) error {
	s, err := documentSchema()
	if err != nil {
		return fmt.Errorf("load document schema: %w", err)
	}
	result, err := s.Validate(gojsonschema.NewGoLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: schema validation: %v", ErrInvalidDocument, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(msgs, "; "))
	}
	return nil
}

func (d *Decoder) build(raw any) (Document, error) {
	var doc Document
	var items []any

	switch v := raw.(type) {
	case []any:
		items = v
	case map[string]any:
		if t, ok := v["title"]; ok {
			s, ok := t.(string)
			if !ok {
				return Document{}, fmt.Errorf("%w: title must be a string", ErrInvalidDocument)
			}
			doc.Title = s
		}
		list, ok := v["blocks"].([]any)
		if !ok {
			return Document{}, fmt.Errorf("%w: missing blocks list", ErrInvalidDocument)
		}
		items = list
	default:
		return Document{}, fmt.Errorf("%w: top level must be a list or an object", ErrInvalidDocument)
	}

	doc.Blocks = make([]Block, 0, len(items))
	for i, item := range items {
		b, err := d.buildBlock(i, item)
		if err != nil {
			return Document{}, err
		}
		doc.Blocks = append(doc.Blocks, b)
	}
	return doc, nil
}

func (d *Decoder) buildBlock(index int, item any) (Block, error) {
	m, ok := item.(map[string]any)
	if !ok {
		return Block{}, fmt.Errorf("%w: block %d is not an object", ErrInvalidDocument, index)
	}

	typeTag, _ := m["type"].(string)
	t, err := ParseBlockType(typeTag)
	if err != nil {
		return Block{}, fmt.Errorf("block %d: %w", index, err)
	}
	b := Block{Type: t, Order: float64(index)}

	switch id := m["id"].(type) {
	case nil:
		b.ID = d.newID()
	case string:
		b.ID = id
	default:
		n, ok := toFloat(id)
		if !ok {
			return Block{}, fmt.Errorf("%w: block %d id has type %T", ErrInvalidDocument, index, id)
		}
		b.ID = strconv.FormatFloat(n, 'f', -1, 64)
	}
	if b.ID == "" {
		b.ID = d.newID()
	}

	if c, ok := m["content"]; ok && c != nil {
		s, ok := c.(string)
		if !ok {
			return Block{}, fmt.Errorf("%w: block %d content must be a string", ErrInvalidDocument, index)
		}
		b.Content = s
	}
	if o, ok := m["order"]; ok && o != nil {
		n, ok := toFloat(o)
		if !ok {
			return Block{}, fmt.Errorf("%w: block %d order must be a number", ErrInvalidDocument, index)
		}
		b.Order = n
	}
	return b, nil
}

func (d *Decoder) newID() string {
	if d.NewID != nil {
		return d.NewID()
	}
	return uuid.NewString()
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
