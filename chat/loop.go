package chat

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "log"
    "strings"
    "time"

    "indira-gpt/backend/access"
    "indira-gpt/backend/gateway"
)

// ErrModelUnavailable marks failures no retry can fix: broken TLS, DNS,
// refused connections.
var ErrModelUnavailable = errors.New("model service unreachable")

// QueryRunner executes a query block on behalf of the conversation.
type QueryRunner interface {
    Run(ctx context.Context, fileName, collection string, pipeline []json.RawMessage) (*gateway.Result, error)
}

// Loop drives one user turn: permission pre-check, prompt, streamed
// generation with retry, query execution with repair, and a screened final
// answer.
type Loop struct {
    Session Session
    Queries QueryRunner
    Policy  *access.Policy
    Schemas []SchemaSummary

    // MaxRetries bounds generation attempts when the model is rate
    // limited; RepairLimit bounds how often a broken query may be fixed.
    MaxRetries  int
    RepairLimit int

    // Sleep is replaceable so tests do not wait out real backoff.
    Sleep func(time.Duration)
}

func NewLoop(session Session, queries QueryRunner, policy *access.Policy, schemas []SchemaSummary) *Loop {
    return &Loop{
        Session:     session,
        Queries:     queries,
        Policy:      policy,
        Schemas:     schemas,
        MaxRetries:  5,
        RepairLimit: 2,
        Sleep:       time.Sleep,
    }
}

// Run processes one question, pushing progress and the answer through emit.
// A denied question or a content violation is a normal outcome, not an
// error; only unrecoverable model failures return one.
func (l *Loop) Run(ctx context.Context, question string, emit func(Event)) error {
    if ok, violations := l.Policy.CheckQuestion(question); !ok {
        emit(Event{Type: EventFinal, Text: deniedMessage(violations)})
        return nil
    }

    answer, err := l.generate(ctx, userPrompt(question, l.Schemas), emit)
    if err != nil {
        return err
    }
    return l.process(ctx, answer, 0, emit)
}

// process inspects one model answer, running and feeding back its query
// block when present. repairs counts failed query attempts so far.
func (l *Loop) process(ctx context.Context, answer string, repairs int, emit func(Event)) error {
    if ok, violations := l.Policy.CheckResponse(answer); !ok {
        emit(Event{Type: EventFinal, Text: deniedMessage(violations)})
        return nil
    }

    block, present, parseErr := ExtractQueryBlock(answer)
    if !present {
        emit(Event{Type: EventFinal, Text: StripQueryBlocks(answer)})
        return nil
    }
    if parseErr != nil {
        return l.repair(ctx, parseErr, repairs, emit)
    }

    emit(Event{Type: EventStatus, Text: "Querying your data..."})
    result, err := l.Queries.Run(ctx, l.fileFor(block), block.Collection, block.Pipeline)
    if err != nil {
        if errors.Is(err, gateway.ErrAccessDenied) {
            emit(Event{Type: EventFinal, Text: deniedMessage(nil)})
            return nil
        }
        log.Printf("query block failed (attempt %d): %v", repairs+1, err)
        return l.repair(ctx, err, repairs, emit)
    }

    rowsJSON, err := json.Marshal(result.Rows)
    if err != nil {
        return l.repair(ctx, err, repairs, emit)
    }
    highlight, _ := DominantValue(result.Rows)
    followUp, err := l.generate(ctx,
        resultPrompt(string(rowsJSON), result.RowCount, result.TotalRows, result.Truncated, highlight),
        emit)
    if err != nil {
        return err
    }
    return l.process(ctx, followUp, repairs, emit)
}

func (l *Loop) repair(ctx context.Context, cause error, repairs int, emit func(Event)) error {
    if repairs < l.RepairLimit {
        emit(Event{Type: EventStatus, Text: "Adjusting the query..."})
        answer, err := l.generate(ctx, repairPrompt(cause), emit)
        if err != nil {
            return err
        }
        return l.process(ctx, answer, repairs+1, emit)
    }
    answer, err := l.generate(ctx, fallbackPrompt(), emit)
    if err != nil {
        return err
    }
    emit(Event{Type: EventFinal, Text: StripQueryBlocks(answer)})
    return nil
}

// fileFor resolves which uploaded file a query block targets, so access
// control keys on the file name even when the model only named the
// collection.
func (l *Loop) fileFor(block *QueryBlock) string {
    if block.FileName != "" {
        return block.FileName
    }
    for _, s := range l.Schemas {
        if s.Collection == block.Collection {
            return s.FileName
        }
    }
    return ""
}

// generate streams one model response, retrying with doubling backoff when
// the service is rate limited. MaxRetries counts retries, not calls: the
// first attempt is free, so up to MaxRetries+1 calls are made.
func (l *Loop) generate(ctx context.Context, prompt string, emit func(Event)) (string, error) {
    for attempt := 0; ; attempt++ {
        text, err := l.streamOnce(ctx, prompt, emit)
        if err == nil {
            return text, nil
        }
        if isTransportError(err) {
            msg := "Could not reach the AI service. Check the server's network and TLS configuration."
            emit(Event{Type: EventError, Text: msg})
            return "", fmt.Errorf("%w: %v", ErrModelUnavailable, err)
        }
        if !isQuotaError(err) || attempt >= l.MaxRetries {
            emit(Event{Type: EventError, Text: "The AI service returned an error. Please try again."})
            return "", fmt.Errorf("generate: %w", err)
        }
        wait := time.Duration(2000*(1<<attempt)) * time.Millisecond
        emit(Event{Type: EventStatus, Text: fmt.Sprintf(
            "System at capacity. Retrying in %ds (attempt %d/%d)...",
            int(wait.Seconds()), attempt+1, l.MaxRetries)})
        l.Sleep(wait)
    }
}

func (l *Loop) streamOnce(ctx context.Context, prompt string, emit func(Event)) (string, error) {
    stream, err := l.Session.Send(ctx, prompt)
    if err != nil {
        return "", err
    }
    var sb strings.Builder
    for {
        chunk, err := stream.Next()
        if err != nil {
            if errors.Is(err, io.EOF) {
                break
            }
            return "", err
        }
        sb.WriteString(chunk)
        if chunk != "" {
            emit(Event{Type: EventDelta, Text: chunk})
        }
    }
    return sb.String(), nil
}

func deniedMessage(files []string) string {
    if len(files) > 0 {
        return fmt.Sprintf(
            "You don't have access to %s. Ask your administrator to grant it, or ask about the datasets available to you.",
            strings.Join(files, ", "))
    }
    return "You don't have access to the data needed for that question. Ask your administrator to grant it, or ask about the datasets available to you."
}

func isQuotaError(err error) bool {
    msg := strings.ToLower(err.Error())
    for _, marker := range []string{"429", "503", "resource_exhausted", "quota", "rate limit", "overloaded", "unavailable"} {
        if strings.Contains(msg, marker) {
            return true
        }
    }
    return false
}

func isTransportError(err error) bool {
    msg := strings.ToLower(err.Error())
    for _, marker := range []string{"certificate", "x509", "tls", "connection refused", "no such host", "network is unreachable", "handshake"} {
        if strings.Contains(msg, marker) {
            return true
        }
    }
    return false
}
