package controllers

import (
    "log"
    "net/http"
    "time"

    "github.com/gin-gonic/gin"

    "indira-gpt/backend/config"
    "indira-gpt/backend/database"
    "indira-gpt/backend/models"
    "indira-gpt/backend/utils"
)

const tokenTTL = 7 * 24 * time.Hour

// Login verifies credentials and issues a JWT.
func Login(cfg config.Config) gin.HandlerFunc {
    return func(c *gin.Context) {
        var req models.LoginRequest
        if err := c.ShouldBindJSON(&req); err != nil {
            c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
            return
        }

        ctx, cancel := dbContext(c)
        defer cancel()

        user, err := loadUserByEmail(ctx, req.Email)
        if err != nil || !utils.CheckPassword(req.Password, user.PasswordHash) {
            c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
            return
        }

        token, err := utils.GenerateJWT(cfg.JWTSecret, user.ID, user.Email, user.Role, tokenTTL)
        if err != nil {
            log.Printf("token generation failed for %s: %v", user.Email, err)
            c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create session"})
            return
        }

        if _, err := database.Pool.Exec(ctx,
            `UPDATE users SET last_login = now() WHERE id = $1`, user.ID); err != nil {
            log.Printf("last_login update failed for %s: %v", user.Email, err)
        }

        c.JSON(http.StatusOK, gin.H{
            "token": token,
            "user": gin.H{
                "email":           user.Email,
                "role":            user.Role,
                "accessibleFiles": user.AccessibleFiles,
            },
        })
    }
}

// Me returns the authenticated user's profile.
func Me() gin.HandlerFunc {
    return func(c *gin.Context) {
        user, err := currentUser(c)
        if err != nil {
            c.JSON(http.StatusUnauthorized, gin.H{"error": "user no longer exists"})
            return
        }
        c.JSON(http.StatusOK, gin.H{
            "email":           user.Email,
            "role":            user.Role,
            "accessibleFiles": user.AccessibleFiles,
            "lastLogin":       user.LastLogin,
        })
    }
}

// Logout ends the session. Tokens are stateless, so this only clears the
// server-side conversation.
func Logout() gin.HandlerFunc {
    return func(c *gin.Context) {
        Sessions.Reset(c.GetInt64("user_id"))
        c.JSON(http.StatusOK, gin.H{"message": "logged out"})
    }
}
