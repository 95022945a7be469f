// Package llm is the generative-extraction capability: providers fill
// schema-declared module fields from unstructured text and return either a
// schema-conforming value set or an explicit failure, never free-form text.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"lens/internal/model"
)

// Provider is the extraction interface. The kernel calls Extract at most
// once per module per record.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// Extract fills the requested fields from the evidence text. Every
	// returned value conforms to its FieldSpec type; anything else is an
	// error, never a partial success.
	Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error)

	// IsAvailable checks the provider is configured and reachable.
	IsAvailable(ctx context.Context) bool
}

// FieldSpec declares one requested field.
type FieldSpec struct {
	Path string // dot path within the module tree
	Type string // "string", "number", "bool", "list"
	Hint string // one-line description supplied by the field rule
}

// ExtractRequest is one batched extraction call for one module.
type ExtractRequest struct {
	Module string      // module namespace, for logging only
	Text   string      // evidence text assembled from the record
	Fields []FieldSpec // fields still unset and applicable
}

// ExtractResponse carries validated field values keyed by path. Fields the
// model could not determine are absent, not null.
type ExtractResponse struct {
	Fields     map[string]any
	Model      string
	TokensUsed int
}

// Config holds provider configuration.
type Config struct {
	Provider  string // "openai", "ollama", ""
	Model     string
	APIKey    string
	BaseURL   string
	Timeout   int // seconds
	MaxTokens int
}

// ConfigFromModel converts the runtime config section.
func ConfigFromModel(c model.LLMConfig) Config {
	return Config{
		Provider:  c.Provider,
		Model:     c.Model,
		APIKey:    c.APIKey,
		BaseURL:   c.BaseURL,
		Timeout:   c.Timeout,
		MaxTokens: c.MaxTokens,
	}
}

// BuildPrompt constructs the extraction prompt: the evidence text plus a
// JSON skeleton of the requested fields. The model must answer with that
// JSON object only.
func BuildPrompt(req ExtractRequest) string {
	fields := append([]FieldSpec(nil), req.Fields...)
	sort.Slice(fields, func(i, j int) bool { return fields[i].Path < fields[j].Path })

	var b strings.Builder
	b.WriteString("Extract the following fields from the text below. ")
	b.WriteString("Respond with a single JSON object using exactly these keys. ")
	b.WriteString("Omit any key you cannot determine from the text; never guess.\n\nFields:\n")
	for _, f := range fields {
		fmt.Fprintf(&b, "- %q (%s)", f.Path, f.Type)
		if f.Hint != "" {
			fmt.Fprintf(&b, ": %s", f.Hint)
		}
		b.WriteString("\n")
	}
	b.WriteString("\nText:\n")
	b.WriteString(req.Text)
	return b.String()
}

// ValidateResponse checks a decoded JSON object against the requested
// field specs and returns only conforming values. Unknown keys and
// mistyped values fail the whole response: schema-conforming or explicit
// failure, nothing between.
func ValidateResponse(raw map[string]any, fields []FieldSpec) (map[string]any, error) {
	specs := make(map[string]FieldSpec, len(fields))
	for _, f := range fields {
		specs[f.Path] = f
	}
	out := make(map[string]any)
	for key, value := range raw {
		spec, ok := specs[key]
		if !ok {
			return nil, fmt.Errorf("response contains undeclared field %q", key)
		}
		if value == nil {
			continue
		}
		coerced, err := coerce(value, spec.Type)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		out[key] = coerced
	}
	return out, nil
}

func coerce(v any, typ string) (any, error) {
	switch typ {
	case "", "string":
		if s, ok := v.(string); ok {
			return s, nil
		}
	case "number":
		if f, ok := v.(float64); ok {
			return f, nil
		}
		if s, ok := v.(string); ok {
			var f float64
			if err := json.Unmarshal([]byte(s), &f); err == nil {
				return f, nil
			}
		}
	case "bool":
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case "list":
		switch t := v.(type) {
		case []any:
			out := make([]any, 0, len(t))
			for _, item := range t {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("list item is %T, want string", item)
				}
				out = append(out, s)
			}
			return out, nil
		case string:
			return []any{t}, nil
		}
	default:
		return nil, fmt.Errorf("unknown field type %q", typ)
	}
	return nil, fmt.Errorf("value is %T, want %s", v, typ)
}
