package access

import (
    "testing"

    "github.com/stretchr/testify/assert"
)

var catalog = []string{"Revenue.csv", "Lead Metrics.csv", "Patient Data.csv"}

func TestUnrestrictedPolicyAllowsEverything(t *testing.T) {
    p := NewPolicy(nil, catalog)
    assert.True(t, p.Unrestricted())
    assert.True(t, p.CanAccess("Revenue.csv"))

    ok, violations := p.CheckQuestion("show me revenue and lead metrics")
    assert.True(t, ok)
    assert.Empty(t, violations)
    assert.Equal(t, catalog, p.AccessibleFiles())
}

func TestCheckQuestionBlocksVariants(t *testing.T) {
    p := NewPolicy([]string{"Revenue.csv"}, catalog)

    cases := []string{
        "summarize Lead Metrics.csv for me",
        "what is in lead metrics?",
        "show lead_metrics totals",
        "pull up lead-metrics numbers",
    }
    for _, q := range cases {
        ok, violations := p.CheckQuestion(q)
        assert.False(t, ok, "question=%q", q)
        assert.Contains(t, violations, "Lead Metrics.csv", "question=%q", q)
    }
}

func TestCheckQuestionBlocksSignificantWords(t *testing.T) {
    p := NewPolicy([]string{"Revenue.csv"}, catalog)

    ok, violations := p.CheckQuestion("how many leads came in last week?")
    assert.False(t, ok)
    assert.Contains(t, violations, "Lead Metrics.csv")

    // short words never trigger the partial match
    ok, _ = p.CheckQuestion("is the total up?")
    assert.True(t, ok)
}

func TestCheckQuestionAllowsGrantedFiles(t *testing.T) {
    p := NewPolicy([]string{"Revenue.csv"}, catalog)
    ok, violations := p.CheckQuestion("total revenue by center from Revenue.csv")
    assert.True(t, ok)
    assert.Empty(t, violations)
}

func TestCheckResponseSkipsWordMatch(t *testing.T) {
    p := NewPolicy([]string{"Revenue.csv"}, catalog)

    // prose mentioning "leads" is fine in an answer
    ok, _ := p.CheckResponse("Revenue grew 12% while leads stayed flat.")
    assert.True(t, ok)

    // naming the file itself is not
    ok, violations := p.CheckResponse("According to Lead Metrics.csv, totals fell.")
    assert.False(t, ok)
    assert.Contains(t, violations, "Lead Metrics.csv")
}

func TestAccessibleFilesFiltered(t *testing.T) {
    p := NewPolicy([]string{"revenue.csv"}, catalog)
    assert.Equal(t, []string{"Revenue.csv"}, p.AccessibleFiles())
    assert.True(t, p.CanAccess("REVENUE.CSV"))
}

func TestRouteFilesRevenueExcludesLeads(t *testing.T) {
    files := []string{"Revenue.csv", "Lead Revenue Projection.csv", "Lead Metrics.csv"}
    out := RouteFiles("what was total revenue last month?", files)
    assert.Equal(t, []string{"Revenue.csv"}, out)
}

func TestRouteFilesKeywordTable(t *testing.T) {
    out := RouteFiles("how many leads converted?", catalog)
    assert.Equal(t, []string{"Lead Metrics.csv"}, out)

    out = RouteFiles("patient appointment load by center", catalog)
    assert.Equal(t, []string{"Patient Data.csv"}, out)
}

func TestRouteFilesNoKeywordKeepsAll(t *testing.T) {
    out := RouteFiles("give me an overview", catalog)
    assert.Equal(t, catalog, out)
}

func TestIsRevenueQuestion(t *testing.T) {
    assert.True(t, IsRevenueQuestion("monthly income by branch"))
    assert.False(t, IsRevenueQuestion("how many patients visited?"))
}
