package models

import "time"

const (
    RoleAdmin = "admin"
    RoleUser  = "user"
)

type User struct {
    ID              int64      `json:"id"`
    Email           string     `json:"email"`
    PasswordHash    string     `json:"-"`
    Role            string     `json:"role"`
    AccessibleFiles []string   `json:"accessible_files"`
    CreatedAt       time.Time  `json:"created_at"`
    LastLogin       *time.Time `json:"last_login"`
    AddedBy         string     `json:"added_by,omitempty"`
}

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// CanAccess reports whether the user may reference the given source file.
// Admins may access everything.
func (u User) CanAccess(fileName string) bool {
    if u.IsAdmin() {
        return true
    }
    for _, f := range u.AccessibleFiles {
        if f == fileName {
            return true
        }
    }
    return false
}
