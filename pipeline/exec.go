package pipeline

import (
    "encoding/json"
    "fmt"
    "math"
    "sort"
    "strings"
)

// Execute runs validated stages over the documents in order. Input documents
// are never mutated; each stage produces a fresh slice.
func Execute(docs []Document, stages []Stage) ([]Document, error) {
    out := docs
    var err error
    for i, stage := range stages {
        switch stage.Name {
        case "$match":
            out, err = execMatch(out, stage)
        case "$group":
            out, err = execGroup(out, stage)
        case "$sort":
            out, err = execSort(out, stage)
        case "$project":
            out, err = execProject(out, stage)
        case "$addFields", "$set":
            out, err = execAddFields(out, stage)
        case "$unwind":
            out, err = execUnwind(out, stage)
        case "$limit":
            out, err = execLimitSkip(out, stage, true)
        case "$skip":
            out, err = execLimitSkip(out, stage, false)
        case "$count":
            out, err = execCount(out, stage)
        default:
            return nil, fmt.Errorf("unsupported pipeline stage %s", stage.Name)
        }
        if err != nil {
            return nil, fmt.Errorf("stage %d (%s): %w", i, stage.Name, err)
        }
    }
    if out == nil {
        out = []Document{}
    }
    return out, nil
}

func execMatch(docs []Document, stage Stage) ([]Document, error) {
    query, ok := stage.Spec.(map[string]any)
    if !ok {
        return nil, fmt.Errorf("expects an object")
    }
    var out []Document
    for _, doc := range docs {
        m, err := matchDoc(doc, query)
        if err != nil {
            return nil, err
        }
        if m {
            out = append(out, doc)
        }
    }
    return out, nil
}

func execGroup(docs []Document, stage Stage) ([]Document, error) {
    spec, ok := stage.Spec.(map[string]any)
    if !ok {
        return nil, fmt.Errorf("expects an object")
    }
    idExpr, hasID := spec["_id"]
    if !hasID {
        return nil, fmt.Errorf("requires an _id field")
    }

    type bucket struct {
        id   any
        docs []Document
    }
    var order []string
    buckets := map[string]*bucket{}
    for _, doc := range docs {
        id, err := evalExpr(doc, idExpr)
        if err != nil {
            return nil, err
        }
        key := canonicalKey(id)
        b, ok := buckets[key]
        if !ok {
            b = &bucket{id: id}
            buckets[key] = b
            order = append(order, key)
        }
        b.docs = append(b.docs, doc)
    }

    out := make([]Document, 0, len(order))
    for _, key := range order {
        b := buckets[key]
        result := Document{"_id": b.id}
        for field, accSpec := range spec {
            if field == "_id" {
                continue
            }
            v, err := accumulate(b.docs, field, accSpec)
            if err != nil {
                return nil, err
            }
            result[field] = v
        }
        out = append(out, result)
    }
    return out, nil
}

func accumulate(docs []Document, field string, spec any) (any, error) {
    m, ok := spec.(map[string]any)
    if !ok || len(m) != 1 {
        return nil, fmt.Errorf("field %s: accumulator must be a single-operator object", field)
    }
    var op string
    var arg any
    for k, v := range m {
        op, arg = k, v
    }

    switch op {
    case "$sum":
        total := 0.0
        for _, doc := range docs {
            v, err := evalExpr(doc, arg)
            if err != nil {
                return nil, err
            }
            if n, ok := asNumber(v); ok {
                total += n
            }
        }
        return total, nil
    case "$avg":
        total, count := 0.0, 0
        for _, doc := range docs {
            v, err := evalExpr(doc, arg)
            if err != nil {
                return nil, err
            }
            if n, ok := asNumber(v); ok {
                total += n
                count++
            }
        }
        if count == 0 {
            return nil, nil
        }
        return total / float64(count), nil
    case "$min", "$max":
        var best any
        for _, doc := range docs {
            v, err := evalExpr(doc, arg)
            if err != nil {
                return nil, err
            }
            if v == nil {
                continue
            }
            if best == nil {
                best = v
                continue
            }
            c := compare(v, best)
            if (op == "$min" && c < 0) || (op == "$max" && c > 0) {
                best = v
            }
        }
        return best, nil
    case "$first":
        if len(docs) == 0 {
            return nil, nil
        }
        return evalExpr(docs[0], arg)
    case "$last":
        if len(docs) == 0 {
            return nil, nil
        }
        return evalExpr(docs[len(docs)-1], arg)
    case "$push":
        list := make([]any, 0, len(docs))
        for _, doc := range docs {
            v, err := evalExpr(doc, arg)
            if err != nil {
                return nil, err
            }
            list = append(list, v)
        }
        return list, nil
    case "$count":
        return float64(len(docs)), nil
    default:
        return nil, fmt.Errorf("field %s: unsupported accumulator %s", field, op)
    }
}

func execSort(docs []Document, stage Stage) ([]Document, error) {
    spec, ok := stage.Spec.(map[string]any)
    if !ok || len(spec) == 0 {
        return nil, fmt.Errorf("expects a non-empty object")
    }
    // multi-key sorts depend on key order, which the decoded map lost
    keys, err := orderedKeys(stage.Raw)
    if err != nil {
        return nil, err
    }
    type sortKey struct {
        field string
        desc  bool
    }
    sortKeys := make([]sortKey, 0, len(keys))
    for _, k := range keys {
        dir, ok := asNumber(spec[k])
        if !ok || (dir != 1 && dir != -1) {
            return nil, fmt.Errorf("field %s: sort direction must be 1 or -1", k)
        }
        sortKeys = append(sortKeys, sortKey{field: k, desc: dir == -1})
    }

    out := make([]Document, len(docs))
    copy(out, docs)
    sort.SliceStable(out, func(i, j int) bool {
        for _, sk := range sortKeys {
            c := compare(out[i][sk.field], out[j][sk.field])
            if c == 0 {
                continue
            }
            if sk.desc {
                return c > 0
            }
            return c < 0
        }
        return false
    })
    return out, nil
}

func execProject(docs []Document, stage Stage) ([]Document, error) {
    spec, ok := stage.Spec.(map[string]any)
    if !ok || len(spec) == 0 {
        return nil, fmt.Errorf("expects a non-empty object")
    }

    inclusion := false
    for field, v := range spec {
        if field == "_id" {
            continue
        }
        if isProjectFlag(v) {
            if projectFlagOn(v) {
                inclusion = true
            }
        } else {
            // computed fields imply inclusion mode
            inclusion = true
        }
    }

    out := make([]Document, 0, len(docs))
    for _, doc := range docs {
        var result Document
        if inclusion {
            result = Document{}
            if id, ok := doc["_id"]; ok && !excluded(spec, "_id") {
                result["_id"] = id
            }
            for field, v := range spec {
                if field == "_id" {
                    continue
                }
                if isProjectFlag(v) {
                    if projectFlagOn(v) {
                        if val, ok := doc[field]; ok {
                            result[field] = val
                        }
                    }
                    continue
                }
                ev, err := evalExpr(doc, v)
                if err != nil {
                    return nil, err
                }
                result[field] = ev
            }
        } else {
            result = make(Document, len(doc))
            for k, v := range doc {
                if excluded(spec, k) {
                    continue
                }
                result[k] = v
            }
        }
        out = append(out, result)
    }
    return out, nil
}

func isProjectFlag(v any) bool {
    switch n := v.(type) {
    case bool:
        return true
    case float64:
        return n == 0 || n == 1
    default:
        return false
    }
}

func projectFlagOn(v any) bool {
    switch n := v.(type) {
    case bool:
        return n
    case float64:
        return n == 1
    default:
        return false
    }
}

func excluded(spec map[string]any, field string) bool {
    v, ok := spec[field]
    return ok && isProjectFlag(v) && !projectFlagOn(v)
}

func execAddFields(docs []Document, stage Stage) ([]Document, error) {
    spec, ok := stage.Spec.(map[string]any)
    if !ok {
        return nil, fmt.Errorf("expects an object")
    }
    out := make([]Document, 0, len(docs))
    for _, doc := range docs {
        result := make(Document, len(doc)+len(spec))
        for k, v := range doc {
            result[k] = v
        }
        for field, expr := range spec {
            v, err := evalExpr(doc, expr)
            if err != nil {
                return nil, err
            }
            result[field] = v
        }
        out = append(out, result)
    }
    return out, nil
}

func execUnwind(docs []Document, stage Stage) ([]Document, error) {
    var path string
    switch spec := stage.Spec.(type) {
    case string:
        path = spec
    case map[string]any:
        path, _ = spec["path"].(string)
    }
    if !strings.HasPrefix(path, "$") {
        return nil, fmt.Errorf("expects a $-prefixed field path")
    }
    field := path[1:]

    var out []Document
    for _, doc := range docs {
        v := fieldPath(doc, field)
        switch items := v.(type) {
        case nil:
            // missing or null drops the document
        case []any:
            for _, item := range items {
                clone := make(Document, len(doc))
                for k, dv := range doc {
                    clone[k] = dv
                }
                clone[field] = item
                out = append(out, clone)
            }
        default:
            out = append(out, doc)
        }
    }
    return out, nil
}

func execLimitSkip(docs []Document, stage Stage, limit bool) ([]Document, error) {
    n, ok := asNumber(stage.Spec)
    if !ok || n < 0 || n != math.Trunc(n) {
        return nil, fmt.Errorf("expects a non-negative integer")
    }
    count := int(n)
    if limit {
        if count >= len(docs) {
            return docs, nil
        }
        return docs[:count], nil
    }
    if count >= len(docs) {
        return []Document{}, nil
    }
    return docs[count:], nil
}

func execCount(docs []Document, stage Stage) ([]Document, error) {
    label, ok := stage.Spec.(string)
    if !ok || label == "" {
        return nil, fmt.Errorf("expects a non-empty field name")
    }
    return []Document{{label: float64(len(docs))}}, nil
}

// canonicalKey serializes a group id deterministically so equal ids land in
// the same bucket even when they are composite objects.
func canonicalKey(id any) string {
    if m, ok := id.(map[string]any); ok {
        keys := make([]string, 0, len(m))
        for k := range m {
            keys = append(keys, k)
        }
        sort.Strings(keys)
        var sb strings.Builder
        sb.WriteByte('{')
        for _, k := range keys {
            sb.WriteString(k)
            sb.WriteByte(':')
            sb.WriteString(canonicalKey(m[k]))
            sb.WriteByte(',')
        }
        sb.WriteByte('}')
        return sb.String()
    }
    b, err := json.Marshal(id)
    if err != nil {
        return fmt.Sprintf("%v", id)
    }
    return fmt.Sprintf("%T:%s", id, b)
}

// orderedKeys extracts the top-level keys of a JSON object in document
// order.
func orderedKeys(raw json.RawMessage) ([]string, error) {
    dec := json.NewDecoder(strings.NewReader(string(raw)))
    tok, err := dec.Token()
    if err != nil {
        return nil, err
    }
    if d, ok := tok.(json.Delim); !ok || d != '{' {
        return nil, fmt.Errorf("expects an object")
    }
    var keys []string
    for dec.More() {
        tok, err := dec.Token()
        if err != nil {
            return nil, err
        }
        key, ok := tok.(string)
        if !ok {
            return nil, fmt.Errorf("malformed object")
        }
        keys = append(keys, key)
        var skip json.RawMessage
        if err := dec.Decode(&skip); err != nil {
            return nil, err
        }
    }
    return keys, nil
}
