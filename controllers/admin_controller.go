package controllers

import (
    "encoding/json"
    "errors"
    "log"
    "net/http"
    "strings"

    "github.com/gin-gonic/gin"
    "github.com/jackc/pgx/v5/pgconn"

    "indira-gpt/backend/database"
    "indira-gpt/backend/models"
    "indira-gpt/backend/utils"
)

// ListUsers returns all accounts with their grant counts.
func ListUsers() gin.HandlerFunc {
    return func(c *gin.Context) {
        ctx, cancel := dbContext(c)
        defer cancel()

        rows, err := database.Pool.Query(ctx, `
            SELECT id, email, role, accessible_files, created_at, last_login, COALESCE(added_by, '')
            FROM users ORDER BY created_at`)
        if err != nil {
            c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list users"})
            return
        }
        defer rows.Close()

        var out []gin.H
        for rows.Next() {
            var u models.User
            var files []byte
            if err := rows.Scan(&u.ID, &u.Email, &u.Role, &files, &u.CreatedAt, &u.LastLogin, &u.AddedBy); err != nil {
                c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list users"})
                return
            }
            _ = json.Unmarshal(files, &u.AccessibleFiles)
            out = append(out, gin.H{
                "email":           u.Email,
                "role":            u.Role,
                "accessibleFiles": u.AccessibleFiles,
                "fileCount":       len(u.AccessibleFiles),
                "createdAt":       u.CreatedAt,
                "lastLogin":       u.LastLogin,
                "addedBy":         u.AddedBy,
            })
        }
        c.JSON(http.StatusOK, gin.H{"users": out})
    }
}

// AddUser creates an account with an optional initial file grant.
func AddUser() gin.HandlerFunc {
    return func(c *gin.Context) {
        var req models.AddUserRequest
        if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" {
            c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
            return
        }
        role := req.Role
        if role != models.RoleAdmin {
            role = models.RoleUser
        }
        files := req.AccessibleFiles
        if files == nil {
            files = []string{}
        }
        payload, err := json.Marshal(files)
        if err != nil {
            c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file list"})
            return
        }

        ctx, cancel := dbContext(c)
        defer cancel()
        _, err = database.Pool.Exec(ctx, `
            INSERT INTO users (email, password_hash, role, accessible_files, added_by)
            VALUES ($1, $2, $3, $4, $5)`,
            strings.ToLower(strings.TrimSpace(req.Email)),
            utils.HashPassword(req.Password), role, string(payload), c.GetString("email"))
        if err != nil {
            var pgErr *pgconn.PgError
            if errors.As(err, &pgErr) && pgErr.Code == "23505" {
                c.JSON(http.StatusConflict, gin.H{"error": "a user with that email already exists"})
                return
            }
            log.Printf("add user failed: %v", err)
            c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create user"})
            return
        }
        c.JSON(http.StatusCreated, gin.H{"message": "user created", "email": req.Email, "role": role})
    }
}

// DeleteUser removes an account. Admins cannot delete themselves.
func DeleteUser() gin.HandlerFunc {
    return func(c *gin.Context) {
        email := c.Param("email")
        if strings.EqualFold(email, c.GetString("email")) {
            c.JSON(http.StatusBadRequest, gin.H{"error": "you cannot delete your own account"})
            return
        }
        ctx, cancel := dbContext(c)
        defer cancel()
        tag, err := database.Pool.Exec(ctx, `DELETE FROM users WHERE email = $1`, email)
        if err != nil {
            c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete user"})
            return
        }
        if tag.RowsAffected() == 0 {
            c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
            return
        }
        c.JSON(http.StatusOK, gin.H{"message": "user deleted"})
    }
}

// UpdateRole changes an account's role. Admins cannot demote themselves.
func UpdateRole() gin.HandlerFunc {
    return func(c *gin.Context) {
        email := c.Param("email")
        var req models.UpdateRoleRequest
        if err := c.ShouldBindJSON(&req); err != nil ||
            (req.Role != models.RoleAdmin && req.Role != models.RoleUser) {
            c.JSON(http.StatusBadRequest, gin.H{"error": "role must be admin or user"})
            return
        }
        if strings.EqualFold(email, c.GetString("email")) {
            c.JSON(http.StatusBadRequest, gin.H{"error": "you cannot change your own role"})
            return
        }

        ctx, cancel := dbContext(c)
        defer cancel()
        tag, err := database.Pool.Exec(ctx,
            `UPDATE users SET role = $2 WHERE email = $1`, email, req.Role)
        if err != nil {
            c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update role"})
            return
        }
        if tag.RowsAffected() == 0 {
            c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
            return
        }
        c.JSON(http.StatusOK, gin.H{"message": "role updated", "email": email, "role": req.Role})
    }
}

// GetUserFiles returns one account's file grants.
func GetUserFiles() gin.HandlerFunc {
    return func(c *gin.Context) {
        ctx, cancel := dbContext(c)
        defer cancel()
        user, err := loadUserByEmail(ctx, c.Param("email"))
        if err != nil {
            c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
            return
        }
        files := user.AccessibleFiles
        if files == nil {
            files = []string{}
        }
        c.JSON(http.StatusOK, gin.H{"email": user.Email, "fileNames": files})
    }
}

// UpdateUserFiles replaces an account's file grants. The user's live chat
// session is reset because its permission context changed.
func UpdateUserFiles() gin.HandlerFunc {
    return func(c *gin.Context) {
        email := c.Param("email")
        var req models.UpdateFilesRequest
        if err := c.ShouldBindJSON(&req); err != nil || req.FileNames == nil {
            c.JSON(http.StatusBadRequest, gin.H{"error": "fileNames array is required"})
            return
        }
        payload, err := json.Marshal(req.FileNames)
        if err != nil {
            c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file list"})
            return
        }

        ctx, cancel := dbContext(c)
        defer cancel()
        var userID int64
        err = database.Pool.QueryRow(ctx, `
            UPDATE users SET accessible_files = $2 WHERE email = $1 RETURNING id`,
            email, string(payload)).Scan(&userID)
        if err != nil {
            c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
            return
        }

        Sessions.Reset(userID)
        c.JSON(http.StatusOK, gin.H{"message": "file access updated", "email": email, "fileNames": req.FileNames})
    }
}
