package dataset

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "log"
    "regexp"
    "sort"
    "time"

    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgconn"
)

// ErrUnknownDataset is returned when a collection has no backing table.
var ErrUnknownDataset = errors.New("dataset not found")

// collections all come out of CollectionName, but validate before the name
// is interpolated into DDL anyway.
var safeCollection = regexp.MustCompile(`^data_[a-z0-9_]*$`)

// FileMeta is one row of the uploaded-file registry.
type FileMeta struct {
    ID             int64     `json:"id"`
    FileName       string    `json:"fileName"`
    FileSize       int64     `json:"fileSize"`
    DataCollection string    `json:"dataCollection"`
    Columns        []string  `json:"columns"`
    RowCount       int       `json:"rowCount"`
    UploadedAt     time.Time `json:"uploadedAt"`
    UploadedBy     string    `json:"uploadedBy"`
}

// SchemaInfo is the catalog view of one dataset: its columns, a small
// sample, per-column type guesses and the total row count.
type SchemaInfo struct {
    FileName    string            `json:"fileName"`
    Collection  string            `json:"collectionName"`
    Columns     []string          `json:"columns"`
    ColumnTypes map[string]string `json:"columnTypes"`
    Sample      []Document        `json:"sampleData"`
    RowCount    int               `json:"rowCount"`
}

// DB is the subset of pgxpool.Pool the store uses.
type DB interface {
    Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
    Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
    QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
    Begin(ctx context.Context) (pgx.Tx, error)
    SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Store persists datasets as one jsonb table per collection plus a metadata
// registry in csv_files.
type Store struct {
    pool DB
}

func NewStore(pool DB) *Store {
    return &Store{pool: pool}
}

// Ingest replaces the collection for fileName with the given records. The
// rows are loaded into a shadow table first and swapped in inside a single
// transaction, so concurrent readers always see either the old dataset or
// the new one, never an empty or half-loaded table.
func (s *Store) Ingest(ctx context.Context, fileName string, records []Document) (string, error) {
    if len(records) == 0 {
        return "", ErrEmptyDataset
    }
    collection := CollectionName(fileName)
    if !safeCollection.MatchString(collection) {
        return "", fmt.Errorf("invalid collection name %q", collection)
    }
    shadow := collection + "__new"

    if _, err := s.pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, shadow)); err != nil {
        return "", fmt.Errorf("drop shadow table: %w", err)
    }
    _, err := s.pool.Exec(ctx, fmt.Sprintf(
        `CREATE TABLE %s (_id BIGSERIAL PRIMARY KEY, doc JSONB NOT NULL)`, shadow))
    if err != nil {
        return "", fmt.Errorf("create shadow table: %w", err)
    }

    batch := &pgx.Batch{}
    insert := fmt.Sprintf(`INSERT INTO %s (doc) VALUES ($1)`, shadow)
    for _, rec := range records {
        payload, err := json.Marshal(rec)
        if err != nil {
            return "", fmt.Errorf("encode record: %w", err)
        }
        batch.Queue(insert, string(payload))
    }
    if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
        return "", fmt.Errorf("load records: %w", err)
    }

    tx, err := s.pool.Begin(ctx)
    if err != nil {
        return "", fmt.Errorf("begin swap: %w", err)
    }
    defer tx.Rollback(ctx)
    if _, err := tx.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, collection)); err != nil {
        return "", fmt.Errorf("drop old collection: %w", err)
    }
    if _, err := tx.Exec(ctx, fmt.Sprintf(
        `ALTER TABLE %s RENAME TO %s`, shadow, collection)); err != nil {
        return "", fmt.Errorf("swap collection: %w", err)
    }
    if err := tx.Commit(ctx); err != nil {
        return "", fmt.Errorf("commit swap: %w", err)
    }

    log.Printf("ingested %d rows into %s", len(records), collection)
    return collection, nil
}

// Documents loads every row of a collection in insertion order. The stored
// row id is attached as _id with type int64, which the rest of the system
// uses to tell storage identity apart from data.
func (s *Store) Documents(ctx context.Context, collection string) ([]Document, error) {
    if !safeCollection.MatchString(collection) {
        return nil, ErrUnknownDataset
    }
    exists, err := s.collectionExists(ctx, collection)
    if err != nil {
        return nil, err
    }
    if !exists {
        return nil, ErrUnknownDataset
    }

    rows, err := s.pool.Query(ctx, fmt.Sprintf(
        `SELECT _id, doc FROM %s ORDER BY _id`, collection))
    if err != nil {
        return nil, fmt.Errorf("read collection %s: %w", collection, err)
    }
    defer rows.Close()

    var docs []Document
    for rows.Next() {
        var id int64
        var payload []byte
        if err := rows.Scan(&id, &payload); err != nil {
            return nil, fmt.Errorf("scan row: %w", err)
        }
        doc := Document{}
        if err := json.Unmarshal(payload, &doc); err != nil {
            return nil, fmt.Errorf("decode row %d: %w", id, err)
        }
        doc["_id"] = id
        docs = append(docs, doc)
    }
    if err := rows.Err(); err != nil {
        return nil, fmt.Errorf("read collection %s: %w", collection, err)
    }
    return docs, nil
}

// Describe builds the schema view of one uploaded file: up to five sample
// rows with storage ids stripped, and a type guess per column from the
// first non-null value seen in the sample.
func (s *Store) Describe(ctx context.Context, meta FileMeta) (*SchemaInfo, error) {
    info := &SchemaInfo{
        FileName:    meta.FileName,
        Collection:  meta.DataCollection,
        Columns:     meta.Columns,
        ColumnTypes: map[string]string{},
        Sample:      []Document{},
    }
    if !safeCollection.MatchString(meta.DataCollection) {
        return nil, ErrUnknownDataset
    }
    exists, err := s.collectionExists(ctx, meta.DataCollection)
    if err != nil {
        return nil, err
    }
    if !exists {
        // registered but never parsed into rows; schema is metadata only
        return info, nil
    }

    if err := s.pool.QueryRow(ctx, fmt.Sprintf(
        `SELECT count(*) FROM %s`, meta.DataCollection)).Scan(&info.RowCount); err != nil {
        return nil, fmt.Errorf("count %s: %w", meta.DataCollection, err)
    }

    rows, err := s.pool.Query(ctx, fmt.Sprintf(
        `SELECT doc FROM %s ORDER BY _id LIMIT 5`, meta.DataCollection))
    if err != nil {
        return nil, fmt.Errorf("sample %s: %w", meta.DataCollection, err)
    }
    defer rows.Close()
    for rows.Next() {
        var payload []byte
        if err := rows.Scan(&payload); err != nil {
            return nil, fmt.Errorf("scan sample: %w", err)
        }
        doc := Document{}
        if err := json.Unmarshal(payload, &doc); err != nil {
            return nil, fmt.Errorf("decode sample: %w", err)
        }
        info.Sample = append(info.Sample, doc)
    }
    if err := rows.Err(); err != nil {
        return nil, fmt.Errorf("sample %s: %w", meta.DataCollection, err)
    }

    if len(info.Columns) == 0 && len(info.Sample) > 0 {
        for k := range info.Sample[0] {
            info.Columns = append(info.Columns, k)
        }
        sort.Strings(info.Columns)
    }
    for _, col := range info.Columns {
        info.ColumnTypes[col] = guessType(info.Sample, col)
    }
    return info, nil
}

func guessType(sample []Document, column string) string {
    for _, doc := range sample {
        v, ok := doc[column]
        if !ok || v == nil {
            continue
        }
        if _, isNum := v.(float64); isNum {
            return "number"
        }
        return "string"
    }
    return "string"
}

// -------------------- file registry --------------------

// SaveFile records an upload in csv_files, replacing any previous entry for
// the same file name. Content larger than the out-of-row threshold goes to
// csv_blobs so the registry row stays small.
func (s *Store) SaveFile(ctx context.Context, fileName string, content string, uploadedBy string) error {
    const outOfRowThreshold = 16 * 1024 * 1024

    tx, err := s.pool.Begin(ctx)
    if err != nil {
        return fmt.Errorf("begin save: %w", err)
    }
    defer tx.Rollback(ctx)

    if _, err := tx.Exec(ctx,
        `DELETE FROM csv_files WHERE file_name = $1`, fileName); err != nil {
        return fmt.Errorf("clear previous upload: %w", err)
    }
    if _, err := tx.Exec(ctx,
        `DELETE FROM csv_blobs WHERE file_name = $1`, fileName); err != nil {
        return fmt.Errorf("clear previous blob: %w", err)
    }

    outOfRow := len(content) > outOfRowThreshold
    stored := content
    if outOfRow {
        stored = ""
        if _, err := tx.Exec(ctx,
            `INSERT INTO csv_blobs (file_name, content) VALUES ($1, $2)`,
            fileName, content); err != nil {
            return fmt.Errorf("store blob: %w", err)
        }
    }

    _, err = tx.Exec(ctx, `
        INSERT INTO csv_files
            (file_name, file_size, file_content, stored_out_of_row,
             data_collection, columns, row_count, is_active, uploaded_by)
        VALUES ($1, $2, $3, $4, $5, '[]', 0, TRUE, $6)`,
        fileName, len(content), stored, outOfRow, CollectionName(fileName), uploadedBy)
    if err != nil {
        return fmt.Errorf("register file: %w", err)
    }
    return tx.Commit(ctx)
}

// SetParseResult updates the registry after a successful ingest.
func (s *Store) SetParseResult(ctx context.Context, fileName, collection string, columns []string, rowCount int) error {
    cols, err := json.Marshal(columns)
    if err != nil {
        return fmt.Errorf("encode columns: %w", err)
    }
    _, err = s.pool.Exec(ctx, `
        UPDATE csv_files
        SET data_collection = $2, columns = $3, row_count = $4
        WHERE file_name = $1 AND is_active`,
        fileName, collection, string(cols), rowCount)
    if err != nil {
        return fmt.Errorf("update parse result: %w", err)
    }
    return nil
}

// FileContent returns the raw uploaded text, following the out-of-row
// indirection when needed.
func (s *Store) FileContent(ctx context.Context, fileName string) (string, error) {
    var content string
    var outOfRow bool
    err := s.pool.QueryRow(ctx, `
        SELECT COALESCE(file_content, ''), stored_out_of_row
        FROM csv_files WHERE file_name = $1 AND is_active`,
        fileName).Scan(&content, &outOfRow)
    if errors.Is(err, pgx.ErrNoRows) {
        return "", ErrUnknownDataset
    }
    if err != nil {
        return "", fmt.Errorf("load file %s: %w", fileName, err)
    }
    if !outOfRow {
        return content, nil
    }
    err = s.pool.QueryRow(ctx,
        `SELECT content FROM csv_blobs WHERE file_name = $1`, fileName).Scan(&content)
    if errors.Is(err, pgx.ErrNoRows) {
        return "", ErrUnknownDataset
    }
    if err != nil {
        return "", fmt.Errorf("load blob %s: %w", fileName, err)
    }
    return content, nil
}

// ListActive returns the registry rows for active files, newest upload
// first. Rows with no recorded upload time sort last.
func (s *Store) ListActive(ctx context.Context) ([]FileMeta, error) {
    rows, err := s.pool.Query(ctx, `
        SELECT id, file_name, file_size, data_collection, columns, row_count,
               COALESCE(uploaded_at, 'epoch'::timestamptz), uploaded_by
        FROM csv_files
        WHERE is_active
        ORDER BY uploaded_at DESC NULLS LAST`)
    if err != nil {
        return nil, fmt.Errorf("list files: %w", err)
    }
    defer rows.Close()

    var metas []FileMeta
    for rows.Next() {
        var m FileMeta
        var cols []byte
        if err := rows.Scan(&m.ID, &m.FileName, &m.FileSize, &m.DataCollection,
            &cols, &m.RowCount, &m.UploadedAt, &m.UploadedBy); err != nil {
            return nil, fmt.Errorf("scan file row: %w", err)
        }
        if err := json.Unmarshal(cols, &m.Columns); err != nil {
            m.Columns = nil
        }
        metas = append(metas, m)
    }
    return metas, rows.Err()
}

// FindFile looks up the active registry row for a file name.
func (s *Store) FindFile(ctx context.Context, fileName string) (*FileMeta, error) {
    var m FileMeta
    var cols []byte
    err := s.pool.QueryRow(ctx, `
        SELECT id, file_name, file_size, data_collection, columns, row_count,
               COALESCE(uploaded_at, 'epoch'::timestamptz), uploaded_by
        FROM csv_files WHERE file_name = $1 AND is_active`,
        fileName).Scan(&m.ID, &m.FileName, &m.FileSize, &m.DataCollection,
        &cols, &m.RowCount, &m.UploadedAt, &m.UploadedBy)
    if errors.Is(err, pgx.ErrNoRows) {
        return nil, ErrUnknownDataset
    }
    if err != nil {
        return nil, fmt.Errorf("find file %s: %w", fileName, err)
    }
    if err := json.Unmarshal(cols, &m.Columns); err != nil {
        m.Columns = nil
    }
    return &m, nil
}

func (s *Store) collectionExists(ctx context.Context, collection string) (bool, error) {
    var reg *string
    if err := s.pool.QueryRow(ctx,
        `SELECT to_regclass($1)::text`, collection).Scan(&reg); err != nil {
        return false, fmt.Errorf("check collection %s: %w", collection, err)
    }
    return reg != nil, nil
}
