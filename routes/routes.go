package routes

import (
    "net/http"

    "github.com/gin-gonic/gin"

    "indira-gpt/backend/chat"
    "indira-gpt/backend/config"
    "indira-gpt/backend/controllers"
    "indira-gpt/backend/database"
    "indira-gpt/backend/middlewares"
)

// Register wires every endpoint. model may be nil when no API key is
// configured; chat endpoints then answer 503.
func Register(r *gin.Engine, cfg config.Config, model chat.Model) {
    r.GET("/health", func(c *gin.Context) {
        dbOK := database.Pool != nil && database.Pool.Ping(c.Request.Context()) == nil
        c.JSON(http.StatusOK, gin.H{
            "status":          "ok",
            "database":        dbOK,
            "modelConfigured": model != nil,
        })
    })

    api := r.Group("/api")

    auth := api.Group("/auth")
    {
        auth.POST("/login", controllers.Login(cfg))
        auth.GET("/me", middlewares.Auth(cfg.JWTSecret), controllers.Me())
        auth.POST("/logout", middlewares.Auth(cfg.JWTSecret), controllers.Logout())
    }

    admin := api.Group("/admin", middlewares.Auth(cfg.JWTSecret), middlewares.RequireAdmin())
    {
        admin.GET("/users", controllers.ListUsers())
        admin.POST("/users", controllers.AddUser())
        admin.DELETE("/users/:email", controllers.DeleteUser())
        admin.PUT("/users/:email/role", controllers.UpdateRole())
        admin.GET("/users/:email/files", controllers.GetUserFiles())
        admin.PUT("/users/:email/files", controllers.UpdateUserFiles())

        admin.GET("/files", controllers.ListFiles())
        admin.POST("/files/upload", controllers.Upload())
        admin.POST("/files/upload-batch", controllers.UploadBatch())
    }

    user := api.Group("/user", middlewares.Auth(cfg.JWTSecret))
    {
        user.GET("/files", controllers.UserFiles())
    }

    data := api.Group("/data", middlewares.Auth(cfg.JWTSecret))
    {
        data.GET("/schema/:fileName", controllers.Schema())
        data.GET("/schemas", controllers.Schemas())
        data.POST("/query", controllers.Query())
    }

    chatGroup := api.Group("/chat", middlewares.Auth(cfg.JWTSecret))
    {
        chatGroup.POST("/send", controllers.ChatSend(model))
        chatGroup.POST("/reset", controllers.ChatReset())
    }

    r.GET("/data/:filename", middlewares.Auth(cfg.JWTSecret), controllers.ServeData())
}
