// Package access enforces per-user dataset permissions at the text level.
// Questions are screened before they reach the model and answers are
// screened after, so a restricted user can neither ask about nor be told
// about files outside their grant.
package access

import (
    "regexp"
    "strings"
)

var wordSplit = regexp.MustCompile(`[\s_\-]+`)

// Policy is the permission view for one user. A nil or empty Accessible
// list means unrestricted access; restriction is always an explicit grant.
type Policy struct {
    Accessible []string
    AllFiles   []string
}

// NewPolicy builds the policy for a user. Admins pass nil accessible to get
// the unrestricted view.
func NewPolicy(accessible, allFiles []string) *Policy {
    return &Policy{Accessible: accessible, AllFiles: allFiles}
}

// Unrestricted reports whether every known file is reachable.
func (p *Policy) Unrestricted() bool {
    return len(p.Accessible) == 0
}

// AccessibleFiles returns the files this policy grants, in catalog order.
func (p *Policy) AccessibleFiles() []string {
    if p.Unrestricted() {
        return p.AllFiles
    }
    var out []string
    for _, f := range p.AllFiles {
        if p.CanAccess(f) {
            out = append(out, f)
        }
    }
    return out
}

// CanAccess reports whether a specific file is granted.
func (p *Policy) CanAccess(fileName string) bool {
    if p.Unrestricted() {
        return true
    }
    for _, f := range p.Accessible {
        if strings.EqualFold(f, fileName) {
            return true
        }
    }
    return false
}

// CheckQuestion screens a user question. It flags mention of any file the
// user cannot access, matching the file name in its common written forms
// and, more aggressively than answer screening, any distinctive word of
// the name. Returns the blocked files it found.
func (p *Policy) CheckQuestion(question string) (bool, []string) {
    return p.scan(question, true)
}

// CheckResponse screens generated text before it is shown. Only full name
// variants count here; single-word matches would flag ordinary prose.
func (p *Policy) CheckResponse(response string) (bool, []string) {
    return p.scan(response, false)
}

func (p *Policy) scan(text string, matchWords bool) (bool, []string) {
    if p.Unrestricted() {
        return true, nil
    }
    lower := strings.ToLower(text)
    var violations []string
    for _, file := range p.AllFiles {
        if p.CanAccess(file) {
            continue
        }
        if mentionsFile(lower, file, matchWords) {
            violations = append(violations, file)
        }
    }
    return len(violations) == 0, violations
}

func mentionsFile(lowerText, fileName string, matchWords bool) bool {
    for _, variant := range nameVariants(fileName) {
        if variant != "" && strings.Contains(lowerText, variant) {
            return true
        }
    }
    if !matchWords {
        return false
    }
    base := strings.ToLower(strings.TrimSuffix(fileName, suffixOf(fileName)))
    for _, word := range wordSplit.Split(base, -1) {
        if len(word) > 2 && strings.Contains(lowerText, word) {
            return true
        }
    }
    return false
}

// nameVariants lists the lowercase written forms of a file name: verbatim,
// without extension, and with separators swapped between underscore, space
// and dash.
func nameVariants(fileName string) []string {
    full := strings.ToLower(fileName)
    base := strings.TrimSuffix(full, suffixOf(full))
    return []string{
        full,
        base,
        wordSplit.ReplaceAllString(base, "_"),
        wordSplit.ReplaceAllString(base, " "),
        wordSplit.ReplaceAllString(base, "-"),
    }
}

func suffixOf(fileName string) string {
    if i := strings.LastIndex(fileName, "."); i >= 0 {
        return fileName[i:]
    }
    return ""
}
