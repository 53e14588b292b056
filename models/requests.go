package models

import "encoding/json"

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AddUserRequest struct {
    Email           string   `json:"email"`
    Password        string   `json:"password"`
    Role            string   `json:"role"`
    AccessibleFiles []string `json:"accessibleFiles"`
}

type UpdateRoleRequest struct {
    Role string `json:"role"`
}

type UpdateFilesRequest struct {
    FileNames []string `json:"fileNames"`
}

// QueryRequest is the body of POST /api/data/query. Either FileName or
// CollectionName must be set; the pipeline is kept raw until validated.
type QueryRequest struct {
    Pipeline       []json.RawMessage `json:"pipeline"`
    FileName       string            `json:"fileName"`
    CollectionName string            `json:"collectionName"`
}

type ChatSendRequest struct {
    Message string `json:"message"`
}
