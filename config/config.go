package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
    Port          string
    DatabaseURL   string
    JWTSecret     string
    GeminiAPIKey  string
    GeminiModel   string
    AdminEmail    string
    AdminPassword string
}

func Load() Config {
    _ = godotenv.Load()
    cfg := Config{
        Port:          get("PORT", "5005"),
        DatabaseURL:   must("DATABASE_URL"),
        JWTSecret:     must("JWT_SECRET"),
        GeminiAPIKey:  get("GEMINI_API_KEY", ""),
        GeminiModel:   get("GEMINI_MODEL", "gemini-2.0-flash"),
        AdminEmail:    get("ADMIN_EMAIL", "admin@indira.com"),
        AdminPassword: get("ADMIN_PASSWORD", "admin123"),
    }
    if cfg.GeminiAPIKey == "" {
        log.Printf("GEMINI_API_KEY not set; chat will report the model as unavailable")
    }
    return cfg
}

func get(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func must(k string) string {
	v := os.Getenv(k)
	if v == "" {
		log.Fatalf("missing required env: %s", k)
	}
	return v
}
