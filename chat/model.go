// Package chat runs the multi-turn conversation loop between a user, the
// language model and the query gateway.
package chat

import (
    "context"
    "io"

    "github.com/google/generative-ai-go/genai"
    "google.golang.org/api/iterator"

    "indira-gpt/backend/utils"
)

// Model starts conversation sessions. The indirection exists so the loop
// can be driven by a scripted model in tests.
type Model interface {
    StartSession(systemInstruction string) Session
}

// Session is one multi-turn conversation with history.
type Session interface {
    Send(ctx context.Context, message string) (Stream, error)
}

// Stream yields response text chunks; io.EOF ends the stream.
type Stream interface {
    Next() (string, error)
}

// Event is one item pushed to the client while a turn runs.
type Event struct {
    Type string `json:"type"`
    Text string `json:"text"`
}

const (
    EventDelta  = "delta"  // streamed response fragment
    EventStatus = "status" // progress note (querying, retrying)
    EventFinal  = "final"  // complete cleaned answer
    EventError  = "error"  // terminal failure
)

// -------------------- gemini implementation --------------------

type geminiModel struct {
    client    *genai.Client
    modelName string
}

// NewGeminiModel wraps a Gemini client as a session factory.
func NewGeminiModel(client *genai.Client, modelName string) Model {
    return &geminiModel{client: client, modelName: modelName}
}

func (g *geminiModel) StartSession(systemInstruction string) Session {
    m := g.client.GenerativeModel(g.modelName)
    m.SystemInstruction = &genai.Content{
        Parts: []genai.Part{genai.Text(systemInstruction)},
    }
    return &geminiSession{chat: m.StartChat()}
}

type geminiSession struct {
    chat *genai.ChatSession
}

func (s *geminiSession) Send(ctx context.Context, message string) (Stream, error) {
    iter := s.chat.SendMessageStream(ctx, genai.Text(message))
    return &geminiStream{iter: iter}, nil
}

type geminiStream struct {
    iter *genai.GenerateContentResponseIterator
}

func (s *geminiStream) Next() (string, error) {
    resp, err := s.iter.Next()
    if err == iterator.Done {
        return "", io.EOF
    }
    if err != nil {
        return "", err
    }
    return utils.ResponseText(resp), nil
}
