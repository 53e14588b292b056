package dataset

import (
    "encoding/json"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "indira-gpt/backend/pipeline"
)

func TestParseCSV(t *testing.T) {
    content := "Name,Revenue (INR),City\nAlice,\"8,144,550\",Pune\nBob,42,\n"
    records, columns, err := ParseCSV(content)
    require.NoError(t, err)

    assert.Equal(t, []string{"Name", "Revenue_INR", "City"}, columns)
    require.Len(t, records, 2)
    assert.Equal(t, 8144550.0, records[0]["Revenue_INR"])
    assert.Equal(t, "Pune", records[0]["City"])
    assert.Equal(t, 42.0, records[1]["Revenue_INR"])
    assert.Nil(t, records[1]["City"])
}

func TestParseCSVStripsBOM(t *testing.T) {
    content := "\uFEFFName,Value\nx,1\n"
    records, columns, err := ParseCSV(content)
    require.NoError(t, err)
    assert.Equal(t, []string{"Name", "Value"}, columns)
    assert.Equal(t, "x", records[0]["Name"])
}

func TestParseCSVSkipsBlankRows(t *testing.T) {
    content := "Name,Value\n,\nx,1\n , \ny,2\n"
    records, _, err := ParseCSV(content)
    require.NoError(t, err)
    require.Len(t, records, 2)
    assert.Equal(t, "x", records[0]["Name"])
    assert.Equal(t, "y", records[1]["Name"])
}

func TestParseCSVEmpty(t *testing.T) {
    _, _, err := ParseCSV("")
    assert.ErrorIs(t, err, ErrEmptyDataset)

    _, _, err = ParseCSV("Name,Value\n")
    assert.ErrorIs(t, err, ErrEmptyDataset)
}

// Parsed rows must aggregate to the same totals a spreadsheet would show:
// comma-formatted revenue figures become real numbers, not strings that a
// $group sum silently drops.
func TestParsedRowsAggregateExactly(t *testing.T) {
    content := "Center,Revenue (INR)\n" +
        "Pune,\"8,144,550\"\n" +
        "Delhi,\"12,003,200\"\n" +
        "Pune,\"1,000,250\"\n"
    records, _, err := ParseCSV(content)
    require.NoError(t, err)

    var raw []json.RawMessage
    require.NoError(t, json.Unmarshal([]byte(
        `[{"$group":{"_id":"$Center","total":{"$sum":"$Revenue_INR"}}},`+
            `{"$sort":{"total":-1}}]`), &raw))
    stages, err := pipeline.Validate(raw)
    require.NoError(t, err)

    out, err := pipeline.Execute(records, stages)
    require.NoError(t, err)
    require.Len(t, out, 2)
    assert.Equal(t, "Delhi", out[0]["_id"])
    assert.Equal(t, 12003200.0, out[0]["total"])
    assert.Equal(t, "Pune", out[1]["_id"])
    assert.Equal(t, 9144800.0, out[1]["total"])
}

func TestLooksLikeHTML(t *testing.T) {
    assert.True(t, LooksLikeHTML("<!DOCTYPE html><html><body>login</body></html>"))
    assert.True(t, LooksLikeHTML("  <html lang=\"en\">"))
    assert.False(t, LooksLikeHTML("Name,Value\nx,1\n"))
}
