package main

import (
    "context"
    "log"

    "github.com/gin-gonic/gin"

    "indira-gpt/backend/chat"
    "indira-gpt/backend/config"
    "indira-gpt/backend/database"
    "indira-gpt/backend/routes"
    "indira-gpt/backend/utils"
)

func main() {
    cfg := config.Load()

    database.Connect(cfg.DatabaseURL)
    database.EnsureSchema(cfg.AdminEmail, cfg.AdminPassword)

    var model chat.Model
    if cfg.GeminiAPIKey != "" {
        client, err := utils.NewAIClient(context.Background(), cfg.GeminiAPIKey)
        if err != nil {
            log.Fatalf("gemini client: %v", err)
        }
        model = chat.NewGeminiModel(client, cfg.GeminiModel)
    }

    r := gin.Default()
    r.Use(corsMiddleware())
    routes.Register(r, cfg, model)

    log.Printf("listening on :%s", cfg.Port)
    if err := r.Run(":" + cfg.Port); err != nil {
        log.Fatalf("server stopped: %v", err)
    }
}

func corsMiddleware() gin.HandlerFunc {
    return func(c *gin.Context) {
        c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
        c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
        c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

        if c.Request.Method == "OPTIONS" {
            c.AbortWithStatus(204)
            return
        }
        c.Next()
    }
}
