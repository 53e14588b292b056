package controllers

import (
    "context"
    "encoding/json"
    "errors"
    "time"

    "github.com/gin-gonic/gin"
    "github.com/jackc/pgx/v5"

    "indira-gpt/backend/database"
    "indira-gpt/backend/dataset"
    "indira-gpt/backend/models"
)

var errUserNotFound = errors.New("user not found")

// newStore is a hook point; tests swap in a store over a fake pool.
var newStore = func() *dataset.Store {
    return dataset.NewStore(database.Pool)
}

const dbTimeout = 10 * time.Second

func dbContext(c *gin.Context) (context.Context, context.CancelFunc) {
    return context.WithTimeout(c.Request.Context(), dbTimeout)
}

func loadUserByEmail(ctx context.Context, email string) (models.User, error) {
    var u models.User
    var files []byte
    err := database.Pool.QueryRow(ctx, `
        SELECT id, email, password_hash, role, accessible_files, created_at, last_login, COALESCE(added_by, '')
        FROM users WHERE email = $1`, email).
        Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &files, &u.CreatedAt, &u.LastLogin, &u.AddedBy)
    if errors.Is(err, pgx.ErrNoRows) {
        return u, errUserNotFound
    }
    if err != nil {
        return u, err
    }
    if err := json.Unmarshal(files, &u.AccessibleFiles); err != nil {
        u.AccessibleFiles = nil
    }
    return u, nil
}

// currentUser resolves the authenticated user from the request context set
// by the auth middleware.
func currentUser(c *gin.Context) (models.User, error) {
    ctx, cancel := dbContext(c)
    defer cancel()
    return loadUserByEmail(ctx, c.GetString("email"))
}
