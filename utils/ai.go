package utils

import (
    "context"
    "fmt"
    "strings"

    "github.com/google/generative-ai-go/genai"
    "google.golang.org/api/option"
)

// NewAIClient creates the Gemini client used for conversations.
func NewAIClient(ctx context.Context, apiKey string) (*genai.Client, error) {
    if apiKey == "" {
        return nil, fmt.Errorf("GEMINI_API_KEY is not set")
    }
    client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
    if err != nil {
        return nil, fmt.Errorf("create gemini client: %w", err)
    }
    return client, nil
}

// ResponseText flattens the text parts of a model response.
func ResponseText(resp *genai.GenerateContentResponse) string {
    if resp == nil {
        return ""
    }
    var sb strings.Builder
    for _, cand := range resp.Candidates {
        if cand.Content == nil {
            continue
        }
        for _, part := range cand.Content.Parts {
            if text, ok := part.(genai.Text); ok {
                sb.WriteString(string(text))
            }
        }
    }
    return sb.String()
}
