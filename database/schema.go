package database

import (
    "context"
    "log"

    "indira-gpt/backend/utils"
)

// EnsureSchema creates required tables if they do not exist and seeds the
// default admin account on a fresh database.
func EnsureSchema(adminEmail, adminPassword string) {
    if Pool == nil {
        return
    }
    ctx := context.Background()

    stmts := []string{
        `CREATE TABLE IF NOT EXISTS users (
            id BIGSERIAL PRIMARY KEY,
            email TEXT NOT NULL UNIQUE,
            password_hash TEXT NOT NULL,
            role TEXT NOT NULL DEFAULT 'user',
            accessible_files JSONB NOT NULL DEFAULT '[]'::jsonb,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            last_login TIMESTAMPTZ NULL,
            added_by TEXT NULL
        )`,
        `CREATE TABLE IF NOT EXISTS csv_files (
            id BIGSERIAL PRIMARY KEY,
            file_name TEXT NOT NULL,
            file_size BIGINT NOT NULL DEFAULT 0,
            file_content TEXT NULL,
            stored_out_of_row BOOLEAN NOT NULL DEFAULT FALSE,
            data_collection TEXT NOT NULL,
            columns JSONB NOT NULL DEFAULT '[]'::jsonb,
            row_count INT NOT NULL DEFAULT 0,
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            uploaded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            uploaded_by TEXT NOT NULL
        )`,
        `CREATE UNIQUE INDEX IF NOT EXISTS csv_files_file_name_idx ON csv_files(file_name) WHERE is_active`,
        `CREATE TABLE IF NOT EXISTS csv_blobs (
            file_name TEXT PRIMARY KEY,
            content TEXT NOT NULL
        )`,
    }

    for _, s := range stmts {
        if _, err := Pool.Exec(ctx, s); err != nil {
            log.Printf("schema ensure error: %v in stmt: %s", err, s)
        }
    }

    seedAdmin(ctx, adminEmail, adminPassword)
}

func seedAdmin(ctx context.Context, email, password string) {
    if email == "" || password == "" {
        return
    }
    var exists bool
    if err := Pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email=$1)`, email).Scan(&exists); err != nil {
        log.Printf("admin seed check error: %v", err)
        return
    }
    if exists {
        return
    }
    _, err := Pool.Exec(ctx, `INSERT INTO users(email, password_hash, role, added_by) VALUES($1,$2,'admin','system')`,
        email, utils.HashPassword(password))
    if err != nil {
        log.Printf("admin seed error: %v", err)
        return
    }
    log.Printf("default admin user created: %s (change the password after first login)", email)
}
