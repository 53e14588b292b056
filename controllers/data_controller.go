package controllers

import (
    "errors"
    "net/http"

    "github.com/gin-gonic/gin"

    "indira-gpt/backend/dataset"
    "indira-gpt/backend/gateway"
    "indira-gpt/backend/models"
    "indira-gpt/backend/pipeline"
)

// Schema returns one dataset's catalog entry: columns, types, a sample.
func Schema() gin.HandlerFunc {
    return func(c *gin.Context) {
        fileName := c.Param("fileName")
        user, err := currentUser(c)
        if err != nil {
            c.JSON(http.StatusUnauthorized, gin.H{"error": "user no longer exists"})
            return
        }
        if !user.CanAccess(fileName) {
            c.JSON(http.StatusForbidden, gin.H{"error": "access to this file is not permitted"})
            return
        }

        ctx, cancel := dbContext(c)
        defer cancel()
        store := newStore()
        meta, err := store.FindFile(ctx, fileName)
        if errors.Is(err, dataset.ErrUnknownDataset) {
            c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
            return
        }
        if err != nil {
            c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read schema"})
            return
        }
        info, err := store.Describe(ctx, *meta)
        if err != nil {
            c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read schema"})
            return
        }
        c.JSON(http.StatusOK, info)
    }
}

// Schemas returns the catalog entries for every dataset the caller may
// query.
func Schemas() gin.HandlerFunc {
    return func(c *gin.Context) {
        user, err := currentUser(c)
        if err != nil {
            c.JSON(http.StatusUnauthorized, gin.H{"error": "user no longer exists"})
            return
        }

        infos, err := accessibleSchemas(c, user)
        if err != nil {
            c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read schemas"})
            return
        }
        c.JSON(http.StatusOK, gin.H{"schemas": infos})
    }
}

// Query executes an aggregation pipeline for the caller.
func Query() gin.HandlerFunc {
    return func(c *gin.Context) {
        var req models.QueryRequest
        if err := c.ShouldBindJSON(&req); err != nil {
            c.JSON(http.StatusBadRequest, gin.H{"error": "pipeline is required"})
            return
        }
        user, err := currentUser(c)
        if err != nil {
            c.JSON(http.StatusUnauthorized, gin.H{"error": "user no longer exists"})
            return
        }

        ctx, cancel := dbContext(c)
        defer cancel()
        result, err := gateway.NewExecutor(newStore()).Execute(ctx, gateway.Request{
            FileName:   req.FileName,
            Collection: req.CollectionName,
            Pipeline:   req.Pipeline,
        }, user)
        if err != nil {
            status, body := queryError(err)
            c.JSON(status, body)
            return
        }
        c.JSON(http.StatusOK, result)
    }
}

func queryError(err error) (int, gin.H) {
    var unsafe *pipeline.UnsafePipelineError
    switch {
    case errors.As(err, &unsafe):
        return http.StatusBadRequest, gin.H{"error": unsafe.Error(), "stage": unsafe.Stage}
    case errors.Is(err, gateway.ErrAccessDenied):
        return http.StatusForbidden, gin.H{"error": err.Error()}
    case errors.Is(err, gateway.ErrUnknownDataset):
        return http.StatusNotFound, gin.H{"error": err.Error()}
    default:
        return http.StatusBadRequest, gin.H{
            "error": err.Error(),
            "hint":  "check stage names and column spellings against the dataset schema",
        }
    }
}

// accessibleSchemas builds the catalog view for one user.
func accessibleSchemas(c *gin.Context, user models.User) ([]*dataset.SchemaInfo, error) {
    ctx, cancel := dbContext(c)
    defer cancel()
    store := newStore()
    metas, err := store.ListActive(ctx)
    if err != nil {
        return nil, err
    }
    infos := []*dataset.SchemaInfo{}
    for _, m := range metas {
        if !user.CanAccess(m.FileName) {
            continue
        }
        info, err := store.Describe(ctx, m)
        if err != nil {
            return nil, err
        }
        infos = append(infos, info)
    }
    return infos, nil
}
