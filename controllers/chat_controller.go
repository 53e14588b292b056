package controllers

import (
    "context"
    "encoding/json"
    "log"
    "net/http"

    "github.com/gin-gonic/gin"

    "indira-gpt/backend/access"
    "indira-gpt/backend/chat"
    "indira-gpt/backend/gateway"
    "indira-gpt/backend/models"
)

// Sessions holds the live conversation per user. Anything that changes a
// user's data context resets their entry.
var Sessions = chat.NewSessionManager()

// ChatSend answers one question over server-sent events.
func ChatSend(model chat.Model) gin.HandlerFunc {
    return func(c *gin.Context) {
        if model == nil {
            c.JSON(http.StatusServiceUnavailable, gin.H{"error": "AI service is not configured"})
            return
        }
        var req models.ChatSendRequest
        if err := c.ShouldBindJSON(&req); err != nil || req.Message == "" {
            c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
            return
        }
        user, err := currentUser(c)
        if err != nil {
            c.JSON(http.StatusUnauthorized, gin.H{"error": "user no longer exists"})
            return
        }

        policy, schemas, err := conversationContext(c, user)
        if err != nil {
            c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load datasets"})
            return
        }

        session := Sessions.Get(user.ID, func() chat.Session {
            return model.StartSession(chat.SystemInstruction(schemas))
        })
        loop := chat.NewLoop(session, &queryRunner{user: user}, policy, schemas)

        c.Writer.Header().Set("Content-Type", "text/event-stream")
        c.Writer.Header().Set("Cache-Control", "no-cache")
        c.Writer.Header().Set("Connection", "keep-alive")
        c.Writer.Flush()

        emit := func(e chat.Event) {
            c.SSEvent("message", e)
            c.Writer.Flush()
        }
        if err := loop.Run(c.Request.Context(), req.Message, emit); err != nil {
            log.Printf("chat turn failed for %s: %v", user.Email, err)
            // a failed turn poisons session history for the retry
            Sessions.Reset(user.ID)
        }
        c.SSEvent("done", gin.H{})
        c.Writer.Flush()
    }
}

// ChatReset discards the caller's conversation.
func ChatReset() gin.HandlerFunc {
    return func(c *gin.Context) {
        Sessions.Reset(c.GetInt64("user_id"))
        c.JSON(http.StatusOK, gin.H{"message": "conversation reset"})
    }
}

// conversationContext builds the permission view and dataset summaries a
// turn runs against.
func conversationContext(c *gin.Context, user models.User) (*access.Policy, []chat.SchemaSummary, error) {
    ctx, cancel := dbContext(c)
    defer cancel()
    store := newStore()
    metas, err := store.ListActive(ctx)
    if err != nil {
        return nil, nil, err
    }

    allFiles := make([]string, 0, len(metas))
    for _, m := range metas {
        allFiles = append(allFiles, m.FileName)
    }
    var accessible []string
    if !user.IsAdmin() {
        accessible = user.AccessibleFiles
    }
    policy := access.NewPolicy(accessible, allFiles)

    var schemas []chat.SchemaSummary
    for _, m := range metas {
        if !user.CanAccess(m.FileName) {
            continue
        }
        info, err := store.Describe(ctx, m)
        if err != nil {
            return nil, nil, err
        }
        schemas = append(schemas, chat.SchemaSummary{
            FileName:    info.FileName,
            Collection:  info.Collection,
            Columns:     info.Columns,
            ColumnTypes: info.ColumnTypes,
            RowCount:    info.RowCount,
        })
    }
    return policy, schemas, nil
}

// queryRunner adapts the gateway to the conversation loop.
type queryRunner struct {
    user models.User
}

func (r *queryRunner) Run(ctx context.Context, fileName, collection string, pipeline []json.RawMessage) (*gateway.Result, error) {
    return gateway.NewExecutor(newStore()).Execute(ctx, gateway.Request{
        FileName:   fileName,
        Collection: collection,
        Pipeline:   pipeline,
    }, r.user)
}
