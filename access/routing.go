package access

import "strings"

// Routing maps question keywords to the files that should answer them.
// Exclude patterns trim near-miss files, so a revenue question does not
// also pull in lead-revenue projections.
type Routing struct {
    Keywords     []string
    FilePatterns []string
    Exclude      []string
}

// DefaultRoutings is the topic table for the marketing datasets. The first
// matching routing wins; revenue is listed first because financial answers
// must come only from the revenue ledger.
var DefaultRoutings = []Routing{
    {
        Keywords:     []string{"revenue", "income", "earning", "sales", "turnover", "collection"},
        FilePatterns: []string{"revenue"},
        Exclude:      []string{"lead"},
    },
    {
        Keywords:     []string{"lead", "enquiry", "inquiry", "prospect"},
        FilePatterns: []string{"lead"},
    },
    {
        Keywords:     []string{"patient", "appointment", "opd", "consultation"},
        FilePatterns: []string{"patient", "appointment", "opd"},
    },
    {
        Keywords:     []string{"campaign", "marketing", "spend", "budget", "ads", "advert"},
        FilePatterns: []string{"campaign", "marketing", "spend"},
    },
}

// RouteFiles picks which of the given files a question should be answered
// from. With no keyword hit every file stays in play.
func RouteFiles(question string, files []string) []string {
    lower := strings.ToLower(question)
    for _, r := range DefaultRoutings {
        if !anyKeyword(lower, r.Keywords) {
            continue
        }
        matched := filterFiles(files, r.FilePatterns, r.Exclude)
        if len(matched) > 0 {
            return matched
        }
    }
    return files
}

// IsRevenueQuestion reports whether a question should be answered strictly
// from revenue data.
func IsRevenueQuestion(question string) bool {
    return anyKeyword(strings.ToLower(question), DefaultRoutings[0].Keywords)
}

func anyKeyword(lowerText string, keywords []string) bool {
    for _, kw := range keywords {
        if strings.Contains(lowerText, kw) {
            return true
        }
    }
    return false
}

func filterFiles(files, patterns, exclude []string) []string {
    var out []string
    for _, f := range files {
        lower := strings.ToLower(f)
        if !anyKeyword(lower, patterns) {
            continue
        }
        if len(exclude) > 0 && anyKeyword(lower, exclude) {
            continue
        }
        out = append(out, f)
    }
    return out
}
