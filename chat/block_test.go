package chat

import (
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestExtractQueryBlock(t *testing.T) {
    text := "Let me check.\n```mongodb\n{\"collection\": \"data_revenue\", \"pipeline\": [{\"$count\": \"n\"}]}\n```\n"
    block, present, err := ExtractQueryBlock(text)
    require.NoError(t, err)
    require.True(t, present)
    assert.Equal(t, "data_revenue", block.Collection)
    require.Len(t, block.Pipeline, 1)
}

func TestExtractQueryBlockAbsent(t *testing.T) {
    _, present, err := ExtractQueryBlock("Revenue grew 12% last quarter.")
    assert.False(t, present)
    assert.NoError(t, err)
}

func TestExtractQueryBlockMalformed(t *testing.T) {
    _, present, err := ExtractQueryBlock("```mongodb\n{not json}\n```")
    assert.True(t, present)
    assert.Error(t, err)

    _, present, err = ExtractQueryBlock("```mongodb\n{\"pipeline\": []}\n```")
    assert.True(t, present)
    assert.Error(t, err)

    _, present, err = ExtractQueryBlock("```mongodb\n{\"collection\": \"data_x\"}\n```")
    assert.True(t, present)
    assert.Error(t, err)
}

func TestStripQueryBlocks(t *testing.T) {
    text := "Here you go.\n```mongodb\n{\"collection\": \"c\", \"pipeline\": []}\n```\nDone."
    assert.Equal(t, "Here you go.\n\nDone.", StripQueryBlocks(text))

    text = "Answer.\n```json\n{\"pipeline\": [{\"$match\": {}}]}\n```"
    assert.Equal(t, "Answer.", StripQueryBlocks(text))

    // json blocks without a pipeline survive
    text = "Config:\n```json\n{\"theme\": \"dark\"}\n```"
    assert.Contains(t, StripQueryBlocks(text), "dark")
}

func TestDominantValue(t *testing.T) {
    v, ok := DominantValue([]map[string]any{
        {"_id": "Pune", "avgAge": -3.0, "total": 8144550.0},
    })
    require.True(t, ok)
    assert.Equal(t, "8,144,550", v)

    _, ok = DominantValue(nil)
    assert.False(t, ok)

    _, ok = DominantValue([]map[string]any{{"_id": "Pune", "name": "x"}})
    assert.False(t, ok)
}

func TestFormatNumber(t *testing.T) {
    assert.Equal(t, "8,144,550", formatNumber(8144550))
    assert.Equal(t, "1,234.5", formatNumber(1234.5))
    assert.Equal(t, "-12,000", formatNumber(-12000))
    assert.Equal(t, "999", formatNumber(999))
    assert.Equal(t, "42", formatNumber(42))
}
