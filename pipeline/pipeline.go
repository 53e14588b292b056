// Package pipeline validates and executes aggregation pipelines against
// in-memory document slices. Pipelines arrive as JSON from a language
// model, so every input is treated as untrusted: stages are screened
// against a blacklist before anything runs, and execution errors carry
// enough detail for the model to repair its own query.
package pipeline

import (
    "encoding/json"
    "fmt"
)

// Document is one row flowing through the pipeline.
type Document = map[string]any

// blockedStages are stage names that write outside the query, leak server
// state or touch session internals. Matched case-insensitively by the
// storage engine, so normalize before comparing.
var blockedStages = map[string]struct{}{
    "$out":            {},
    "$merge":          {},
    "$currentop":      {},
    "$listsessions":   {},
    "$plancachestats": {},
}

// UnsafePipelineError reports a blacklisted stage. The offending stage name
// is kept so callers can tell the requester exactly what was rejected.
type UnsafePipelineError struct {
    Stage string
}

func (e *UnsafePipelineError) Error() string {
    return fmt.Sprintf("pipeline contains forbidden stage %s", e.Stage)
}

// Stage is one validated pipeline stage. Raw keeps the original spec bytes
// because some stages ($sort) are order-sensitive and JSON objects lose key
// order when decoded into a map.
type Stage struct {
    Name string
    Spec any
    Raw  json.RawMessage
}

// Validate screens a raw pipeline. Every element must be a JSON object and
// no stage name may be blacklisted. Validation never consults the data, so
// a pipeline rejected here is rejected for every dataset.
func Validate(raw []json.RawMessage) ([]Stage, error) {
    if raw == nil {
        return nil, fmt.Errorf("pipeline must be an array of stages")
    }
    stages := make([]Stage, 0, len(raw))
    for i, elem := range raw {
        var obj map[string]json.RawMessage
        if err := json.Unmarshal(elem, &obj); err != nil || obj == nil {
            return nil, fmt.Errorf("pipeline stage %d is not an object", i)
        }
        for name := range obj {
            if _, blocked := blockedStages[lower(name)]; blocked {
                return nil, &UnsafePipelineError{Stage: name}
            }
        }
        if len(obj) != 1 {
            return nil, fmt.Errorf("pipeline stage %d must have exactly one field", i)
        }
        for name, specRaw := range obj {
            var spec any
            if err := json.Unmarshal(specRaw, &spec); err != nil {
                return nil, fmt.Errorf("pipeline stage %d: decode %s: %w", i, name, err)
            }
            stages = append(stages, Stage{Name: name, Spec: spec, Raw: specRaw})
        }
    }
    return stages, nil
}

func lower(s string) string {
    b := []byte(s)
    for i, c := range b {
        if c >= 'A' && c <= 'Z' {
            b[i] = c + 32
        }
    }
    return string(b)
}
