package dataset

import (
    "bytes"
    "encoding/csv"
    "errors"
    "fmt"
    "strings"

    "github.com/xuri/excelize/v2"
)

// ErrEmptyDataset is returned when a file parses but yields no data rows.
var ErrEmptyDataset = errors.New("file contains no data rows")

// ParseCSV splits raw CSV text into cleaned documents. The first non-blank
// line is the header; a UTF-8 BOM on it is stripped. Rows shorter than the
// header are padded with empty cells, longer rows are truncated, and fully
// blank rows are skipped.
func ParseCSV(content string) ([]Document, []string, error) {
    content = strings.TrimPrefix(content, "\uFEFF")

    r := csv.NewReader(strings.NewReader(content))
    r.FieldsPerRecord = -1
    r.LazyQuotes = true
    r.TrimLeadingSpace = false

    all, err := r.ReadAll()
    if err != nil {
        return nil, nil, fmt.Errorf("parse csv: %w", err)
    }

    var header []string
    var rows [][]string
    for _, rec := range all {
        if isBlankRow(rec) {
            continue
        }
        if header == nil {
            header = rec
            continue
        }
        rows = append(rows, rec)
    }
    if header == nil || len(rows) == 0 {
        return nil, nil, ErrEmptyDataset
    }

    records, columns := BuildRecords(header, rows)
    return records, columns, nil
}

// ParseXLSX reads the first sheet of a spreadsheet and runs it through the
// same cleaning path as CSV data.
func ParseXLSX(data []byte) ([]Document, []string, error) {
    f, err := excelize.OpenReader(bytes.NewReader(data))
    if err != nil {
        return nil, nil, fmt.Errorf("open spreadsheet: %w", err)
    }
    defer f.Close()

    sheets := f.GetSheetList()
    if len(sheets) == 0 {
        return nil, nil, ErrEmptyDataset
    }
    all, err := f.GetRows(sheets[0])
    if err != nil {
        return nil, nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
    }

    var header []string
    var rows [][]string
    for _, rec := range all {
        if isBlankRow(rec) {
            continue
        }
        if header == nil {
            header = rec
            continue
        }
        rows = append(rows, rec)
    }
    if header == nil || len(rows) == 0 {
        return nil, nil, ErrEmptyDataset
    }

    records, columns := BuildRecords(header, rows)
    return records, columns, nil
}

// LooksLikeHTML reports whether file content is actually a web page, which
// happens when a CSV export URL answered with an error or login page.
func LooksLikeHTML(content string) bool {
    head := strings.ToLower(strings.TrimSpace(content))
    if len(head) > 512 {
        head = head[:512]
    }
    return strings.HasPrefix(head, "<!doctype html") ||
        strings.HasPrefix(head, "<html") ||
        strings.Contains(head, "<head>") ||
        strings.Contains(head, "<body>")
}

func isBlankRow(rec []string) bool {
    for _, c := range rec {
        if strings.TrimSpace(c) != "" {
            return false
        }
    }
    return true
}
