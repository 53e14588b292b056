package dataset

import (
    "regexp"
    "strconv"
    "strings"
)

// Document is one stored row: sanitized column name -> number, string or nil.
type Document = map[string]any

var (
    specialChars   = regexp.MustCompile(`[()\[\]{}/\\#%]`)
    whitespaceRun  = regexp.MustCompile(`\s+`)
    underscoreRun  = regexp.MustCompile(`_+`)
    commaNumber    = regexp.MustCompile(`^-?[\d,]+\.?\d*$`)
    plainNumber    = regexp.MustCompile(`^-?\d+\.?\d*$`)
    nonAlphaNum    = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

// CleanFieldName sanitizes a raw CSV header into a storage-safe field name.
// The storage engine reserves '.' as a path delimiter and '$' as an operator
// sentinel, so neither may survive. An empty result falls back to a
// positional name.
func CleanFieldName(raw string, position int) string {
    k := strings.TrimSpace(raw)
    k = strings.ReplaceAll(k, ".", "_")
    if strings.HasPrefix(k, "$") {
        k = "_" + k[1:]
    }
    k = strings.ReplaceAll(k, "$", "")
    k = specialChars.ReplaceAllString(k, "")
    k = whitespaceRun.ReplaceAllString(k, "_")
    k = underscoreRun.ReplaceAllString(k, "_")
    k = strings.Trim(k, "_")
    if k == "" {
        return "col_" + strconv.Itoa(position)
    }
    return k
}

// CleanValue coerces a raw CSV cell. Empty cells become nil. Numbers written
// with thousands separators ("8,144,550") and plain decimals become float64;
// everything else stays a trimmed string. A malformed value is never an
// error, it just stays a string.
func CleanValue(raw string) any {
    trimmed := strings.TrimSpace(raw)
    if trimmed == "" {
        return nil
    }
    if commaNumber.MatchString(trimmed) && strings.Contains(trimmed, ",") {
        stripped := strings.ReplaceAll(trimmed, ",", "")
        if n, err := strconv.ParseFloat(stripped, 64); err == nil {
            return n
        }
    }
    if plainNumber.MatchString(trimmed) {
        if n, err := strconv.ParseFloat(trimmed, 64); err == nil {
            return n
        }
    }
    return trimmed
}

// BuildRecords turns a raw header row plus data rows into cleaned documents.
// Header names are sanitized; two headers colliding after sanitization get
// the positional fallback name so no column is silently lost. Returns the
// records and the column names in header order.
func BuildRecords(header []string, rows [][]string) ([]Document, []string) {
    columns := make([]string, len(header))
    seen := make(map[string]struct{}, len(header))
    for i, h := range header {
        name := CleanFieldName(h, i)
        if _, dup := seen[name]; dup {
            name = "col_" + strconv.Itoa(i)
        }
        seen[name] = struct{}{}
        columns[i] = name
    }

    records := make([]Document, 0, len(rows))
    for _, row := range rows {
        doc := make(Document, len(columns))
        for i, col := range columns {
            var v string
            if i < len(row) {
                v = row[i]
            }
            doc[col] = CleanValue(v)
        }
        records = append(records, doc)
    }
    return records, columns
}

// CollectionName derives the deterministic collection name for a source file.
// Pure: any caller that knows only the file name computes the same result.
func CollectionName(fileName string) string {
    name := fileName
    if len(name) >= 4 && strings.EqualFold(name[len(name)-4:], ".csv") {
        name = name[:len(name)-4]
    }
    name = nonAlphaNum.ReplaceAllString(name, "_")
    name = underscoreRun.ReplaceAllString(name, "_")
    name = strings.Trim(name, "_")
    return "data_" + strings.ToLower(name)
}
