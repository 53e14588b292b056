// Package gateway is the single checkpoint between untrusted pipeline
// requests and stored data: validate, authorize, execute, shape.
package gateway

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "log"
    "sort"
    "time"

    "indira-gpt/backend/dataset"
    "indira-gpt/backend/models"
    "indira-gpt/backend/pipeline"
)

// MaxRows caps how many result rows leave the gateway regardless of what
// the pipeline produced.
const MaxRows = 10000

var (
    ErrAccessDenied   = errors.New("access to this file is not permitted")
    ErrUnknownDataset = errors.New("no dataset matches the request")
)

// Request identifies what to run and where. Either FileName or Collection
// must be set; FileName wins for resolution and is what access control
// keys on.
type Request struct {
    FileName   string
    Collection string
    Pipeline   []json.RawMessage
}

// Result is the shaped query outcome.
type Result struct {
    Rows      []map[string]any `json:"results"`
    RowCount  int              `json:"rowCount"`
    TotalRows int              `json:"totalRows"`
    Truncated bool             `json:"truncated"`
    Columns   []string         `json:"columns"`
    ElapsedMs int64            `json:"executionTime"`
}

type Executor struct {
    store *dataset.Store
}

func NewExecutor(store *dataset.Store) *Executor {
    return &Executor{store: store}
}

// Execute runs one pipeline request for a user. Order matters: the
// pipeline is validated before any authorization or data access, so a
// forbidden stage is rejected even when everything else about the request
// is wrong too.
func (e *Executor) Execute(ctx context.Context, req Request, user models.User) (*Result, error) {
    stages, err := pipeline.Validate(req.Pipeline)
    if err != nil {
        return nil, err
    }

    if req.FileName != "" && !user.IsAdmin() && !user.CanAccess(req.FileName) {
        return nil, ErrAccessDenied
    }

    collection, err := e.resolveCollection(ctx, req)
    if err != nil {
        return nil, err
    }

    start := time.Now()
    docs, err := e.store.Documents(ctx, collection)
    if err != nil {
        if errors.Is(err, dataset.ErrUnknownDataset) {
            return nil, ErrUnknownDataset
        }
        return nil, err
    }
    rows, err := pipeline.Execute(docs, stages)
    if err != nil {
        return nil, err
    }
    elapsed := time.Since(start)

    result := shape(rows)
    result.ElapsedMs = elapsed.Milliseconds()
    log.Printf("query on %s: %d/%d rows in %s", collection, result.RowCount, result.TotalRows, elapsed)
    return result, nil
}

func (e *Executor) resolveCollection(ctx context.Context, req Request) (string, error) {
    if req.FileName != "" {
        meta, err := e.store.FindFile(ctx, req.FileName)
        if err == nil && meta.DataCollection != "" {
            return meta.DataCollection, nil
        }
        if err != nil && !errors.Is(err, dataset.ErrUnknownDataset) {
            return "", err
        }
        return dataset.CollectionName(req.FileName), nil
    }
    if req.Collection != "" {
        return req.Collection, nil
    }
    return "", fmt.Errorf("%w: request names neither file nor collection", ErrUnknownDataset)
}

// shape strips storage ids, applies the row cap and derives the column
// list. A row's _id survives only when a $group put data there; the int64
// ids assigned at load time are storage detail, not data.
func shape(rows []pipeline.Document) *Result {
    total := len(rows)
    truncated := total > MaxRows
    if truncated {
        rows = rows[:MaxRows]
    }

    out := make([]map[string]any, len(rows))
    for i, row := range rows {
        clean := make(map[string]any, len(row))
        for k, v := range row {
            if k == "_id" {
                if _, isStoreID := v.(int64); isStoreID {
                    continue
                }
            }
            clean[k] = v
        }
        out[i] = clean
    }

    var columns []string
    if len(out) > 0 {
        for k := range out[0] {
            columns = append(columns, k)
        }
        sort.Strings(columns)
    }

    return &Result{
        Rows:      out,
        RowCount:  len(out),
        TotalRows: total,
        Truncated: truncated,
        Columns:   columns,
    }
}
