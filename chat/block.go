package chat

import (
    "encoding/json"
    "fmt"
    "regexp"
    "sort"
    "strconv"
    "strings"
)

// QueryBlock is the structured query the model embeds in a fenced
// ```mongodb block.
type QueryBlock struct {
    Collection string            `json:"collection"`
    FileName   string            `json:"fileName"`
    Pipeline   []json.RawMessage `json:"pipeline"`
}

var (
    mongodbFence = regexp.MustCompile("(?s)```mongodb\\s*(.*?)```")
    jsonFence    = regexp.MustCompile("(?s)```json\\s*(.*?)```")
)

// ExtractQueryBlock pulls the first ```mongodb block out of a response.
// The bool reports whether a block was present at all; the error reports a
// present but unparseable block, which the loop treats as repairable.
func ExtractQueryBlock(text string) (*QueryBlock, bool, error) {
    m := mongodbFence.FindStringSubmatch(text)
    if m == nil {
        return nil, false, nil
    }
    var block QueryBlock
    if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &block); err != nil {
        return nil, true, fmt.Errorf("query block is not valid JSON: %w", err)
    }
    if block.Collection == "" && block.FileName == "" {
        return nil, true, fmt.Errorf("query block names no collection")
    }
    if block.Pipeline == nil {
        return nil, true, fmt.Errorf("query block has no pipeline array")
    }
    return &block, true, nil
}

// StripQueryBlocks removes query fences from an answer before display:
// every ```mongodb block, and ```json blocks that carry a pipeline.
func StripQueryBlocks(text string) string {
    out := mongodbFence.ReplaceAllString(text, "")
    out = jsonFence.ReplaceAllStringFunc(out, func(block string) string {
        if strings.Contains(block, `"pipeline"`) {
            return ""
        }
        return block
    })
    return strings.TrimSpace(out)
}

// DominantValue picks the headline number of a query result: the first
// positive numeric field of the first row, skipping group keys. Used to
// tell the model which exact figure to quote.
func DominantValue(rows []map[string]any) (string, bool) {
    if len(rows) == 0 {
        return "", false
    }
    first := rows[0]
    keys := make([]string, 0, len(first))
    for k := range first {
        keys = append(keys, k)
    }
    sort.Strings(keys)
    for _, k := range keys {
        if k == "_id" {
            continue
        }
        if n, ok := first[k].(float64); ok && n > 0 {
            return formatNumber(n), true
        }
    }
    return "", false
}

// formatNumber renders a number the way it should appear in an answer,
// with thousands separators and no trailing zero decimals.
func formatNumber(n float64) string {
    s := strconv.FormatFloat(n, 'f', -1, 64)
    intPart, fracPart, _ := strings.Cut(s, ".")
    neg := strings.HasPrefix(intPart, "-")
    if neg {
        intPart = intPart[1:]
    }
    var sb strings.Builder
    for i, d := range intPart {
        if i > 0 && (len(intPart)-i)%3 == 0 {
            sb.WriteByte(',')
        }
        sb.WriteRune(d)
    }
    out := sb.String()
    if neg {
        out = "-" + out
    }
    if fracPart != "" {
        out += "." + fracPart
    }
    return out
}
