package gateway

import (
    "context"
    "encoding/json"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "indira-gpt/backend/models"
    "indira-gpt/backend/pipeline"
)

func TestForbiddenStageRejectedBeforeAuthorization(t *testing.T) {
    // no store needed: validation must fail before any data access
    e := NewExecutor(nil)
    raw := []json.RawMessage{json.RawMessage(`{"$out": "stolen"}`)}
    user := models.User{Role: models.RoleUser}

    _, err := e.Execute(context.Background(), Request{
        FileName: "Revenue.csv",
        Pipeline: raw,
    }, user)

    var unsafe *pipeline.UnsafePipelineError
    require.ErrorAs(t, err, &unsafe)
    assert.Equal(t, "$out", unsafe.Stage)
}

func TestAccessDeniedBeforeDataAccess(t *testing.T) {
    e := NewExecutor(nil)
    raw := []json.RawMessage{json.RawMessage(`{"$match": {}}`)}
    user := models.User{Role: models.RoleUser, AccessibleFiles: []string{"Other.csv"}}

    _, err := e.Execute(context.Background(), Request{
        FileName: "Revenue.csv",
        Pipeline: raw,
    }, user)
    assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestShapeStripsStorageIDs(t *testing.T) {
    rows := []pipeline.Document{
        {"_id": int64(7), "center": "Pune", "total": 1.0},
        {"_id": "Pune", "total": 2.0},
    }
    result := shape(rows)

    require.Len(t, result.Rows, 2)
    assert.NotContains(t, result.Rows[0], "_id")
    assert.Equal(t, "Pune", result.Rows[1]["_id"])
    assert.Equal(t, []string{"center", "total"}, result.Columns)
}

func TestShapeCapsRows(t *testing.T) {
    rows := make([]pipeline.Document, MaxRows+250)
    for i := range rows {
        rows[i] = pipeline.Document{"i": float64(i)}
    }
    result := shape(rows)

    assert.Equal(t, MaxRows, result.RowCount)
    assert.Equal(t, MaxRows+250, result.TotalRows)
    assert.True(t, result.Truncated)
    assert.Len(t, result.Rows, MaxRows)
}

func TestShapeEmpty(t *testing.T) {
    result := shape(nil)
    assert.Equal(t, 0, result.RowCount)
    assert.False(t, result.Truncated)
    assert.NotNil(t, result.Rows)
}
