package chat

import (
    "fmt"
    "regexp"
    "strings"

    "indira-gpt/backend/access"
)

// SchemaSummary is what the model is told about one dataset.
type SchemaSummary struct {
    FileName    string
    Collection  string
    Columns     []string
    ColumnTypes map[string]string
    RowCount    int
}

var (
    aggregationHint = regexp.MustCompile(`(?i)\b(total|sum|average|avg|count|how many|highest|lowest|top|bottom|trend|compare|group|per\s+\w+|by\s+\w+)\b`)
    analysisHint    = regexp.MustCompile(`(?i)\b(analy[sz]e|insight|summar|overview|report|breakdown)\b`)
)

// maxResultChars bounds how much query output is fed back to the model.
const maxResultChars = 50000

// SystemInstruction writes the standing instructions for a session over
// the given datasets.
func SystemInstruction(schemas []SchemaSummary) string {
    var sb strings.Builder
    sb.WriteString("You are the business intelligence assistant for Indira IVF's marketing team. ")
    sb.WriteString("You answer questions strictly from the uploaded datasets listed below.\n\n")

    sb.WriteString("To read data, reply with exactly one fenced block of this form and nothing else about the data:\n")
    sb.WriteString("```mongodb\n{\"collection\": \"<collection>\", \"pipeline\": [ ... ]}\n```\n")
    sb.WriteString("The pipeline is a JSON aggregation pipeline. Allowed stages: $match, $group, $sort, $project, $addFields, $unwind, $skip, $limit, $count. ")
    sb.WriteString("Never use $out, $merge or any stage that writes or inspects the server.\n\n")

    sb.WriteString("Rules:\n")
    sb.WriteString("- Answer revenue and income questions only from the revenue dataset, never from lead data.\n")
    sb.WriteString("- Quote figures exactly as the query returned them; never round or estimate.\n")
    sb.WriteString("- If no dataset can answer the question, say so instead of inventing numbers.\n\n")

    sb.WriteString("Available datasets:\n")
    for _, s := range schemas {
        sb.WriteString(describeSchema(s))
    }
    return sb.String()
}

func describeSchema(s SchemaSummary) string {
    var cols []string
    for _, c := range s.Columns {
        t := s.ColumnTypes[c]
        if t == "" {
            t = "string"
        }
        cols = append(cols, c+" ("+t+")")
    }
    return fmt.Sprintf("- %s -> collection %q, %d rows, columns: %s\n",
        s.FileName, s.Collection, s.RowCount, strings.Join(cols, ", "))
}

// userPrompt augments the raw question with per-turn guidance: which files
// the question should be answered from, and a two-phase reminder when the
// question clearly needs aggregation.
func userPrompt(question string, schemas []SchemaSummary) string {
    var sb strings.Builder
    sb.WriteString(question)

    files := make([]string, 0, len(schemas))
    for _, s := range schemas {
        files = append(files, s.FileName)
    }
    routed := access.RouteFiles(question, files)
    if len(routed) > 0 && len(routed) < len(files) {
        sb.WriteString("\n\n[Use only these datasets for this question: ")
        sb.WriteString(strings.Join(routed, ", "))
        sb.WriteString("]")
    }
    if access.IsRevenueQuestion(question) {
        sb.WriteString("\n[This is a financial question: query the revenue dataset only.]")
    }
    if aggregationHint.MatchString(question) || analysisHint.MatchString(question) {
        sb.WriteString("\n[First respond with only the query block. After you receive the results you will write the answer.]")
    }
    return sb.String()
}

// resultPrompt feeds query output back for the answer turn.
func resultPrompt(rowsJSON string, rowCount, totalRows int, truncated bool, highlight string) string {
    if len(rowsJSON) > maxResultChars {
        rowsJSON = rowsJSON[:maxResultChars] + "\n... (results truncated)"
    }
    var sb strings.Builder
    sb.WriteString("Query results (")
    sb.WriteString(fmt.Sprintf("%d rows", rowCount))
    if truncated {
        sb.WriteString(fmt.Sprintf(" of %d, truncated", totalRows))
    }
    sb.WriteString("):\n")
    sb.WriteString(rowsJSON)
    sb.WriteString("\n\nWrite the final answer for the user from these results only.")
    if highlight != "" {
        sb.WriteString(" The key figure is ")
        sb.WriteString(highlight)
        sb.WriteString("; state it exactly as written, digit for digit.")
    }
    sb.WriteString(" Do not include any query block in the answer.")
    return sb.String()
}

// repairPrompt asks the model to fix a failed query.
func repairPrompt(queryErr error) string {
    return fmt.Sprintf(
        "That query failed: %v\nSend a corrected query block using only the allowed stages and the column names listed in the dataset schemas.",
        queryErr)
}

// fallbackPrompt asks for a best-effort answer after repairs ran out.
func fallbackPrompt() string {
    return "The data could not be queried. Tell the user plainly that the numbers are unavailable right now, and answer whatever part of the question does not need the data. Do not include any query block or invented figures."
}
