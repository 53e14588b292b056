package dataset

import (
    "testing"

    "github.com/stretchr/testify/assert"
)

func TestCleanFieldName(t *testing.T) {
    cases := []struct {
        raw  string
        want string
    }{
        {"Revenue (INR)", "Revenue_INR"},
        {"  Patient Name  ", "Patient_Name"},
        {"a.b.c", "a_b_c"},
        {"$set", "set"},
        {"to$tal", "total"},
        {"rate %", "rate"},
        {"a//b\\c", "abc"},
        {"__x__", "x"},
        {"a   b\tc", "a_b_c"},
        {"already_clean", "already_clean"},
    }
    for _, tc := range cases {
        assert.Equal(t, tc.want, CleanFieldName(tc.raw, 0), "raw=%q", tc.raw)
    }
}

func TestCleanFieldNameFallback(t *testing.T) {
    assert.Equal(t, "col_3", CleanFieldName("()%#", 3))
    assert.Equal(t, "col_0", CleanFieldName("   ", 0))
}

func TestCleanValue(t *testing.T) {
    assert.Equal(t, 8144550.0, CleanValue("8,144,550"))
    assert.Equal(t, -1234.5, CleanValue("-1,234.5"))
    assert.Equal(t, 42.0, CleanValue("42"))
    assert.Equal(t, -7.25, CleanValue("-7.25"))
    assert.Equal(t, "N/A", CleanValue("  N/A  "))
    assert.Equal(t, "2024-01-15", CleanValue("2024-01-15"))
    assert.Nil(t, CleanValue(""))
    assert.Nil(t, CleanValue("   "))
    // comma pattern without an actual comma stays on the plain path
    assert.Equal(t, 100.0, CleanValue("100"))
    // mixed garbage is kept verbatim as a trimmed string
    assert.Equal(t, "12,34,ab", CleanValue("12,34,ab"))
}

func TestBuildRecordsCollisions(t *testing.T) {
    header := []string{"Name", "name ", "Value"}
    rows := [][]string{{"a", "b", "1"}}
    records, columns := BuildRecords(header, rows)

    assert.Equal(t, []string{"Name", "name", "Value"}, columns)
    assert.Len(t, records, 1)
    assert.Equal(t, "a", records[0]["Name"])
    assert.Equal(t, "b", records[0]["name"])
    assert.Equal(t, 1.0, records[0]["Value"])
}

func TestBuildRecordsExactCollision(t *testing.T) {
    header := []string{"Total (INR)", "Total [INR]"}
    rows := [][]string{{"1", "2"}}
    records, columns := BuildRecords(header, rows)

    assert.Equal(t, []string{"Total_INR", "col_1"}, columns)
    assert.Equal(t, 1.0, records[0]["Total_INR"])
    assert.Equal(t, 2.0, records[0]["col_1"])
}

func TestBuildRecordsShortRow(t *testing.T) {
    header := []string{"a", "b", "c"}
    rows := [][]string{{"1"}}
    records, _ := BuildRecords(header, rows)

    assert.Equal(t, 1.0, records[0]["a"])
    assert.Nil(t, records[0]["b"])
    assert.Nil(t, records[0]["c"])
}

func TestCollectionName(t *testing.T) {
    cases := []struct {
        file string
        want string
    }{
        {"Revenue.csv", "data_revenue"},
        {"Revenue.CSV", "data_revenue"},
        {"Lead Metrics 2024.csv", "data_lead_metrics_2024"},
        {"a--b__c.csv", "data_a_b_c"},
        {"report.xlsx", "data_report_xlsx"},
        {"!!weird!!.csv", "data_weird"},
    }
    for _, tc := range cases {
        assert.Equal(t, tc.want, CollectionName(tc.file), "file=%q", tc.file)
    }
}
