package imageprompt

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Prompt is a prompt recovered from a workflow payload. Source names the
// extraction path that produced it.
type Prompt struct {
	Text   string
	Source string
}

// dataShape classifies the workflow's "data" member before extraction.
type dataShape int

const (
	shapeAbsent dataShape = iota
	shapeEncoded
	shapeObject
	shapeScalar
)

type extraction struct {
	source string
	pick   func(root, data any) any
}

func field(path ...string) func(v any) any {
	return func(v any) any {
		for _, key := range path {
			obj, ok := v.(map[string]any)
			if !ok {
				return nil
			}
			v = obj[key]
		}
		return v
	}
}

func firstOutput(key string) func(root, data any) any {
	return func(root, _ any) any {
		outputs, ok := field("outputs")(root).([]any)
		if !ok || len(outputs) == 0 {
			return nil
		}
		return field(key)(outputs[0])
	}
}

// Each chain is evaluated in order; the first non-null value ends the chain
// even when it is empty, and only then is emptiness checked.
var (
	encodedChain = []extraction{
		{"data.output", func(_, data any) any { return field("output")(data) }},
		{"data.prompt", func(_, data any) any { return field("prompt")(data) }},
		{"data.result", func(_, data any) any { return field("result")(data) }},
	}
	objectChain = []extraction{
		{"data.output", func(_, data any) any { return field("output")(data) }},
		{"data.result.prompt", func(_, data any) any { return field("result", "prompt")(data) }},
	}
	fallbackChain = []extraction{
		{"outputs[0].value", firstOutput("value")},
		{"outputs[0].content", firstOutput("content")},
		{"data.result.prompt", func(root, _ any) any { return field("data", "result", "prompt")(root) }},
	}
)

// Normalize extracts the human-readable prompt from a raw workflow payload.
// It returns false when no recognisable field holds a non-empty value; the
// caller then shows Diagnostic(workflow) instead. Normalize is pure.
func Normalize(workflow json.RawMessage) (Prompt, bool) {
	root, ok := decode(workflow)
	if !ok || !truthy(root) {
		return Prompt{}, false
	}

	data := field("data")(root)
	var (
		value  any
		source string
	)
	switch classify(data) {
	case shapeEncoded:
		if parsed, ok := decode([]byte(data.(string))); ok {
			value, source = coalesce(encodedChain, root, parsed)
		}
	case shapeObject:
		value, source = coalesce(objectChain, root, data)
	}

	if !truthy(value) {
		value, source = coalesce(fallbackChain, root, data)
	}
	if !truthy(value) {
		return Prompt{}, false
	}
	return Prompt{Text: render(value), Source: source}, true
}

// Diagnostic pretty-prints the raw payload with two-space indentation.
func Diagnostic(workflow json.RawMessage) string {
	trimmed := bytes.TrimSpace(workflow)
	if len(trimmed) == 0 {
		return "null"
	}
	var out bytes.Buffer
	if err := json.Indent(&out, trimmed, "", "  "); err != nil {
		return string(trimmed)
	}
	return out.String()
}

func classify(data any) dataShape {
	switch data.(type) {
	case nil:
		return shapeAbsent
	case string:
		return shapeEncoded
	case map[string]any, []any:
		return shapeObject
	default:
		return shapeScalar
	}
}

func coalesce(chain []extraction, root, data any) (any, string) {
	for _, step := range chain {
		if v := step.pick(root, data); v != nil {
			return v, step.source
		}
	}
	return nil, ""
}

func decode(raw []byte) (any, bool) {
	if !json.Valid(raw) {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	return v, true
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case json.Number:
		f, err := strconv.ParseFloat(t.String(), 64)
		return err != nil || f != 0
	default:
		return true
	}
}

func render(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		out, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(out)
	}
}
