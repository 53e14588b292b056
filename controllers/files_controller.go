package controllers

import (
    "errors"
    "io"
    "log"
    "mime/multipart"
    "net/http"
    "path/filepath"
    "strings"

    "github.com/gin-gonic/gin"

    "indira-gpt/backend/dataset"
)

// ListFiles returns the registry of active uploads for the admin screens.
func ListFiles() gin.HandlerFunc {
    return func(c *gin.Context) {
        ctx, cancel := dbContext(c)
        defer cancel()
        metas, err := newStore().ListActive(ctx)
        if err != nil {
            c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list files"})
            return
        }
        if metas == nil {
            metas = []dataset.FileMeta{}
        }
        c.JSON(http.StatusOK, gin.H{"files": metas})
    }
}

// UserFiles returns the datasets the caller may query.
func UserFiles() gin.HandlerFunc {
    return func(c *gin.Context) {
        user, err := currentUser(c)
        if err != nil {
            c.JSON(http.StatusUnauthorized, gin.H{"error": "user no longer exists"})
            return
        }
        ctx, cancel := dbContext(c)
        defer cancel()
        metas, err := newStore().ListActive(ctx)
        if err != nil {
            c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list files"})
            return
        }
        var out []dataset.FileMeta
        for _, m := range metas {
            if user.CanAccess(m.FileName) {
                out = append(out, m)
            }
        }
        if out == nil {
            out = []dataset.FileMeta{}
        }
        c.JSON(http.StatusOK, gin.H{"files": out})
    }
}

// Upload ingests one CSV or spreadsheet.
func Upload() gin.HandlerFunc {
    return func(c *gin.Context) {
        header, err := c.FormFile("file")
        if err != nil {
            c.JSON(http.StatusBadRequest, gin.H{"error": "file field is required"})
            return
        }
        result, err := ingestUpload(c, header)
        if err != nil {
            status, msg := uploadError(err)
            c.JSON(status, gin.H{"error": msg})
            return
        }
        Sessions.ResetAll()
        c.JSON(http.StatusOK, result)
    }
}

// UploadBatch ingests several files in one request, reporting per-file
// outcomes instead of failing the whole batch.
func UploadBatch() gin.HandlerFunc {
    return func(c *gin.Context) {
        form, err := c.MultipartForm()
        if err != nil || len(form.File["files"]) == 0 {
            c.JSON(http.StatusBadRequest, gin.H{"error": "files field is required"})
            return
        }

        var succeeded []gin.H
        var failed []gin.H
        for _, header := range form.File["files"] {
            result, err := ingestUpload(c, header)
            if err != nil {
                _, msg := uploadError(err)
                failed = append(failed, gin.H{"fileName": header.Filename, "error": msg})
                continue
            }
            succeeded = append(succeeded, result)
        }
        if succeeded == nil {
            succeeded = []gin.H{}
        }
        if failed == nil {
            failed = []gin.H{}
        }
        if len(succeeded) > 0 {
            Sessions.ResetAll()
        }
        c.JSON(http.StatusOK, gin.H{"succeeded": succeeded, "failed": failed})
    }
}

// ServeData streams the raw uploaded file back to an authorized user.
func ServeData() gin.HandlerFunc {
    return func(c *gin.Context) {
        fileName := c.Param("filename")
        user, err := currentUser(c)
        if err != nil {
            c.JSON(http.StatusUnauthorized, gin.H{"error": "user no longer exists"})
            return
        }
        if !user.CanAccess(fileName) {
            c.JSON(http.StatusForbidden, gin.H{"error": "access to this file is not permitted"})
            return
        }

        ctx, cancel := dbContext(c)
        defer cancel()
        content, err := newStore().FileContent(ctx, fileName)
        if errors.Is(err, dataset.ErrUnknownDataset) {
            c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
            return
        }
        if err != nil {
            c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read file"})
            return
        }
        c.Header("Content-Disposition", `attachment; filename="`+fileName+`"`)
        c.Data(http.StatusOK, "text/csv", []byte(content))
    }
}

var errUnsupportedType = errors.New("only .csv, .xlsx and .xls files are supported")
var errHTMLContent = errors.New("file contains a web page, not data; re-export the CSV")

// ingestUpload runs the full upload path for one file: sniff, store raw,
// parse, load the collection, record the outcome. A file that stores but
// fails to parse is kept; its rows just are not queryable.
func ingestUpload(c *gin.Context, header *multipart.FileHeader) (gin.H, error) {
    ext := strings.ToLower(filepath.Ext(header.Filename))
    if ext != ".csv" && ext != ".xlsx" && ext != ".xls" {
        return nil, errUnsupportedType
    }

    f, err := header.Open()
    if err != nil {
        return nil, err
    }
    defer f.Close()
    data, err := io.ReadAll(f)
    if err != nil {
        return nil, err
    }

    var records []dataset.Document
    var columns []string
    var content string
    if ext == ".csv" {
        content = string(data)
        if dataset.LooksLikeHTML(content) {
            return nil, errHTMLContent
        }
        records, columns, err = dataset.ParseCSV(content)
    } else {
        // spreadsheet bytes are not kept raw; only the parsed rows are
        records, columns, err = dataset.ParseXLSX(data)
    }
    if errors.Is(err, dataset.ErrEmptyDataset) {
        return nil, err
    }

    ctx, cancel := dbContext(c)
    defer cancel()
    store := newStore()
    if saveErr := store.SaveFile(ctx, header.Filename, content, c.GetString("email")); saveErr != nil {
        return nil, saveErr
    }
    if err != nil {
        log.Printf("upload %s stored but not parsed: %v", header.Filename, err)
        return gin.H{"fileName": header.Filename, "rowCount": 0, "parsed": false}, nil
    }

    collection, err := store.Ingest(ctx, header.Filename, records)
    if err != nil {
        return nil, err
    }
    if err := store.SetParseResult(ctx, header.Filename, collection, columns, len(records)); err != nil {
        return nil, err
    }

    return gin.H{
        "fileName":       header.Filename,
        "collectionName": collection,
        "columns":        columns,
        "rowCount":       len(records),
        "parsed":         true,
    }, nil
}

func uploadError(err error) (int, string) {
    switch {
    case errors.Is(err, errUnsupportedType), errors.Is(err, errHTMLContent),
        errors.Is(err, dataset.ErrEmptyDataset):
        return http.StatusBadRequest, err.Error()
    default:
        log.Printf("upload failed: %v", err)
        return http.StatusInternalServerError, "upload failed"
    }
}
