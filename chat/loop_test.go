package chat

import (
    "context"
    "encoding/json"
    "errors"
    "io"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "indira-gpt/backend/access"
    "indira-gpt/backend/gateway"
)

// -------------------- scripted fakes --------------------

type scriptedReply struct {
    text string
    err  error
}

type fakeSession struct {
    replies []scriptedReply
    prompts []string
}

func (s *fakeSession) Send(_ context.Context, message string) (Stream, error) {
    s.prompts = append(s.prompts, message)
    if len(s.replies) == 0 {
        return nil, errors.New("fake session: no scripted reply left")
    }
    reply := s.replies[0]
    s.replies = s.replies[1:]
    if reply.err != nil {
        return nil, reply.err
    }
    return &fakeStream{chunks: splitChunks(reply.text)}, nil
}

type fakeStream struct {
    chunks []string
}

func (s *fakeStream) Next() (string, error) {
    if len(s.chunks) == 0 {
        return "", io.EOF
    }
    c := s.chunks[0]
    s.chunks = s.chunks[1:]
    return c, nil
}

func splitChunks(text string) []string {
    const n = 12
    var chunks []string
    for len(text) > n {
        chunks = append(chunks, text[:n])
        text = text[n:]
    }
    return append(chunks, text)
}

type fakeQueries struct {
    results []*gateway.Result
    errs    []error
    calls   []string
}

func (q *fakeQueries) Run(_ context.Context, fileName, collection string, _ []json.RawMessage) (*gateway.Result, error) {
    q.calls = append(q.calls, collection)
    if len(q.errs) > 0 {
        err := q.errs[0]
        q.errs = q.errs[1:]
        if err != nil {
            return nil, err
        }
    }
    if len(q.results) == 0 {
        return &gateway.Result{Rows: []map[string]any{}}, nil
    }
    r := q.results[0]
    q.results = q.results[1:]
    return r, nil
}

func testSchemas() []SchemaSummary {
    return []SchemaSummary{
        {FileName: "Revenue.csv", Collection: "data_revenue",
            Columns: []string{"Center", "Revenue_INR"},
            ColumnTypes: map[string]string{"Center": "string", "Revenue_INR": "number"},
            RowCount: 120},
    }
}

func newTestLoop(session *fakeSession, queries *fakeQueries) *Loop {
    l := NewLoop(session, queries,
        access.NewPolicy(nil, []string{"Revenue.csv"}), testSchemas())
    l.Sleep = func(time.Duration) {}
    return l
}

func collect(events *[]Event) func(Event) {
    return func(e Event) { *events = append(*events, e) }
}

func finalText(t *testing.T, events []Event) string {
    t.Helper()
    for _, e := range events {
        if e.Type == EventFinal {
            return e.Text
        }
    }
    t.Fatal("no final event emitted")
    return ""
}

// -------------------- tests --------------------

func TestBlockedQuestionNeverReachesModel(t *testing.T) {
    session := &fakeSession{}
    l := newTestLoop(session, &fakeQueries{})
    l.Policy = access.NewPolicy([]string{"Other.csv"}, []string{"Other.csv", "Revenue.csv"})

    var events []Event
    require.NoError(t, l.Run(context.Background(), "what is the total revenue?", collect(&events)))

    assert.Empty(t, session.prompts)
    assert.Contains(t, finalText(t, events), "Revenue.csv")
}

func TestPlainAnswerStreamsAndFinishes(t *testing.T) {
    session := &fakeSession{replies: []scriptedReply{
        {text: "Revenue grew steadily across all centers this quarter."},
    }}
    l := newTestLoop(session, &fakeQueries{})

    var events []Event
    require.NoError(t, l.Run(context.Background(), "how did we do?", collect(&events)))

    var streamed string
    for _, e := range events {
        if e.Type == EventDelta {
            streamed += e.Text
        }
    }
    assert.Equal(t, "Revenue grew steadily across all centers this quarter.", streamed)
    assert.Equal(t, streamed, finalText(t, events))
}

func TestQueryBlockExecutedAndFedBack(t *testing.T) {
    query := "```mongodb\n{\"collection\": \"data_revenue\", \"pipeline\": [{\"$group\": {\"_id\": null, \"total\": {\"$sum\": \"$Revenue_INR\"}}}]}\n```"
    session := &fakeSession{replies: []scriptedReply{
        {text: query},
        {text: "Total revenue was 8,144,550 INR."},
    }}
    queries := &fakeQueries{results: []*gateway.Result{{
        Rows:     []map[string]any{{"_id": nil, "total": 8144550.0}},
        RowCount: 1, TotalRows: 1,
    }}}
    l := newTestLoop(session, queries)

    var events []Event
    require.NoError(t, l.Run(context.Background(), "total revenue?", collect(&events)))

    require.Equal(t, []string{"data_revenue"}, queries.calls)
    require.Len(t, session.prompts, 2)
    assert.Contains(t, session.prompts[1], "8144550")
    assert.Contains(t, session.prompts[1], "8,144,550")
    assert.Equal(t, "Total revenue was 8,144,550 INR.", finalText(t, events))
}

func TestFailedQueryIsRepairedOnce(t *testing.T) {
    bad := "```mongodb\n{\"collection\": \"data_revenue\", \"pipeline\": [{\"$group\": {\"_id\": \"$Centre\"}}]}\n```"
    good := "```mongodb\n{\"collection\": \"data_revenue\", \"pipeline\": [{\"$count\": \"rows\"}]}\n```"
    session := &fakeSession{replies: []scriptedReply{
        {text: bad},
        {text: good},
        {text: "There are 120 rows."},
    }}
    queries := &fakeQueries{
        errs:    []error{errors.New("stage 0 ($group): requires an _id field"), nil},
        results: []*gateway.Result{{Rows: []map[string]any{{"rows": 120.0}}, RowCount: 1, TotalRows: 1}},
    }
    l := newTestLoop(session, queries)

    var events []Event
    require.NoError(t, l.Run(context.Background(), "how many rows?", collect(&events)))

    require.Len(t, session.prompts, 3)
    assert.Contains(t, session.prompts[1], "query failed")
    assert.Equal(t, "There are 120 rows.", finalText(t, events))
}

func TestRepairLimitFallsBack(t *testing.T) {
    query := "```mongodb\n{\"collection\": \"data_revenue\", \"pipeline\": [{\"$bogus\": 1}]}\n```"
    session := &fakeSession{replies: []scriptedReply{
        {text: query},
        {text: query},
        {text: query},
        {text: "I couldn't retrieve the numbers right now."},
    }}
    queries := &fakeQueries{errs: []error{
        errors.New("unsupported pipeline stage $bogus"),
        errors.New("unsupported pipeline stage $bogus"),
        errors.New("unsupported pipeline stage $bogus"),
    }}
    l := newTestLoop(session, queries)

    var events []Event
    require.NoError(t, l.Run(context.Background(), "total?", collect(&events)))

    // initial + 2 repairs + fallback
    require.Len(t, session.prompts, 4)
    assert.Contains(t, session.prompts[3], "could not be queried")
    assert.Equal(t, "I couldn't retrieve the numbers right now.", finalText(t, events))
    assert.Len(t, queries.calls, 3)
}

func TestQueryAccessDenialEndsTurn(t *testing.T) {
    query := "```mongodb\n{\"collection\": \"data_secret\", \"pipeline\": [{\"$count\": \"n\"}]}\n```"
    session := &fakeSession{replies: []scriptedReply{{text: query}}}
    queries := &fakeQueries{errs: []error{gateway.ErrAccessDenied}}
    l := newTestLoop(session, queries)

    var events []Event
    require.NoError(t, l.Run(context.Background(), "show secrets", collect(&events)))
    assert.Contains(t, finalText(t, events), "don't have access")
}

func TestQuotaErrorRetriesWithBackoff(t *testing.T) {
    session := &fakeSession{replies: []scriptedReply{
        {err: errors.New("googleapi: Error 429: RESOURCE_EXHAUSTED quota exceeded")},
        {err: errors.New("googleapi: Error 503: service unavailable")},
        {text: "All good now."},
    }}
    l := newTestLoop(session, &fakeQueries{})

    var waits []time.Duration
    l.Sleep = func(d time.Duration) { waits = append(waits, d) }

    var events []Event
    require.NoError(t, l.Run(context.Background(), "hello", collect(&events)))

    assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, waits)
    assert.Equal(t, "All good now.", finalText(t, events))
}

func TestQuotaRetryBudgetSpansSixCalls(t *testing.T) {
    quota := errors.New("googleapi: Error 429: RESOURCE_EXHAUSTED quota exceeded")
    session := &fakeSession{replies: []scriptedReply{
        {err: quota}, {err: quota}, {err: quota}, {err: quota}, {err: quota},
        {text: "Here is your answer."},
    }}
    l := newTestLoop(session, &fakeQueries{})

    var waits []time.Duration
    l.Sleep = func(d time.Duration) { waits = append(waits, d) }

    var events []Event
    require.NoError(t, l.Run(context.Background(), "hello", collect(&events)))

    // five retries after the first attempt, then the answer lands
    require.Len(t, session.prompts, 6)
    assert.Equal(t, []time.Duration{
        2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 32 * time.Second,
    }, waits)
    assert.Equal(t, "Here is your answer.", finalText(t, events))
}

func TestQuotaErrorExhaustsRetries(t *testing.T) {
    quota := errors.New("googleapi: Error 429: quota exceeded")
    session := &fakeSession{replies: []scriptedReply{
        {err: quota}, {err: quota}, {err: quota},
    }}
    l := newTestLoop(session, &fakeQueries{})
    l.MaxRetries = 2
    var events []Event
    err := l.Run(context.Background(), "hello", collect(&events))
    require.Error(t, err)

    // first attempt plus two retries, all consumed
    assert.Len(t, session.prompts, 3)
    var sawError bool
    for _, e := range events {
        if e.Type == EventError {
            sawError = true
        }
    }
    assert.True(t, sawError)
}

func TestTransportErrorIsTerminal(t *testing.T) {
    session := &fakeSession{replies: []scriptedReply{
        {err: errors.New("x509: certificate signed by unknown authority")},
    }}
    l := newTestLoop(session, &fakeQueries{})

    var events []Event
    err := l.Run(context.Background(), "hello", collect(&events))
    require.ErrorIs(t, err, ErrModelUnavailable)
    require.Len(t, session.prompts, 1)

    var errText string
    for _, e := range events {
        if e.Type == EventError {
            errText = e.Text
        }
    }
    assert.Contains(t, errText, "TLS")
}

func TestLeakedFileNameInAnswerIsBlocked(t *testing.T) {
    session := &fakeSession{replies: []scriptedReply{
        {text: "Comparing with Secret Salaries.csv, revenue is higher."},
    }}
    l := newTestLoop(session, &fakeQueries{})
    l.Policy = access.NewPolicy([]string{"Revenue.csv"},
        []string{"Revenue.csv", "Secret Salaries.csv"})

    var events []Event
    require.NoError(t, l.Run(context.Background(), "revenue please", collect(&events)))
    assert.Contains(t, finalText(t, events), "Secret Salaries.csv")
    assert.Contains(t, finalText(t, events), "don't have access")
}
