package utils

import (
    "crypto/sha256"
    "crypto/subtle"
    "encoding/hex"
)

// HashPassword returns the hex digest stored for a credential.
func HashPassword(password string) string {
    h := sha256.Sum256([]byte(password))
    return hex.EncodeToString(h[:])
}

// CheckPassword compares a candidate password against a stored digest in
// constant time.
func CheckPassword(password, storedHash string) bool {
    candidate := HashPassword(password)
    return subtle.ConstantTimeCompare([]byte(candidate), []byte(storedHash)) == 1
}
