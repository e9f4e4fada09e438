package errors

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatForUser_BasicError(t *testing.T) {
	err := New(ErrCodePersistenceReadFailed, "could not read 'index.hnsw'", nil)

	result := FormatForUser(err, true)

	assert.Contains(t, result, "could not read 'index.hnsw'")
	assert.Contains(t, result, "[ERR_IO_001_READ_FAILED]")
}

func TestFormatForUser_WithSuggestion(t *testing.T) {
	err := New(ErrCodeAcquireTimeout, "pool acquisition timed out", nil).
		WithSuggestion("Increase store.pool_size or retry the request")

	result := FormatForUser(err, false)

	assert.Contains(t, result, "Suggestion:")
	assert.Contains(t, result, "pool_size")
}

func TestFormatForUser_NoCodeWithoutDebug(t *testing.T) {
	err := New(ErrCodeInternal, "unexpected error", nil)

	result := FormatForUser(err, false)

	assert.NotContains(t, result, "ERR_INTERNAL_003")
}

func TestFormatForUser_StandardError(t *testing.T) {
	err := errors.New("something went wrong")

	result := FormatForUser(err, false)

	assert.Contains(t, result, "something went wrong")
}

func TestFormatForUser_NilError(t *testing.T) {
	result := FormatForUser(nil, false)

	assert.Empty(t, result)
}

func TestFormatJSON_BasicError(t *testing.T) {
	err := New(ErrCodePersistenceReadFailed, "artifact unreadable", nil).
		WithDetail("path", "/data/index.hnsw").
		WithSuggestion("Check the store directory permissions")

	data, jsonErr := FormatJSON(err)

	require.NoError(t, jsonErr)

	var result map[string]any
	require.NoError(t, json.Unmarshal(data, &result))

	assert.Equal(t, ErrCodePersistenceReadFailed, result["code"])
	assert.Equal(t, "artifact unreadable", result["message"])
	assert.Equal(t, string(KindIO), result["kind"])
	assert.Equal(t, string(SeverityError), result["severity"])
	assert.Equal(t, "Check the store directory permissions", result["suggestion"])

	details, ok := result["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "/data/index.hnsw", details["path"])
}

func TestFormatJSON_StandardError(t *testing.T) {
	err := errors.New("generic error")

	data, jsonErr := FormatJSON(err)

	require.NoError(t, jsonErr)

	var result map[string]any
	require.NoError(t, json.Unmarshal(data, &result))

	assert.Equal(t, ErrCodeInternal, result["code"])
	assert.Equal(t, "generic error", result["message"])
}

func TestFormatJSON_NilError(t *testing.T) {
	data, err := FormatJSON(nil)

	assert.NoError(t, err)
	assert.Equal(t, "null", strings.TrimSpace(string(data)))
}

func TestFormatJSON_WithCause(t *testing.T) {
	cause := errors.New("underlying error")
	err := New(ErrCodeInternal, "operation failed", cause)

	data, jsonErr := FormatJSON(err)

	require.NoError(t, jsonErr)

	var result map[string]any
	require.NoError(t, json.Unmarshal(data, &result))

	assert.Equal(t, "underlying error", result["cause"])
}

func TestFormatForCLI_BasicError(t *testing.T) {
	err := New(ErrCodeIndexCorrupt, "ann index is corrupted", nil).
		WithSuggestion("Run rebuild_ann to recreate the index")

	result := FormatForCLI(err)

	assert.Contains(t, result, "ann index is corrupted")
	assert.Contains(t, result, "ERR_IO_004_INDEX_CORRUPT")
}

func TestFormatForCLI_ShortFormat(t *testing.T) {
	err := New(ErrCodePersistenceReadFailed, "file not found", nil)

	result := FormatForCLI(err)

	lines := strings.Split(strings.TrimSpace(result), "\n")
	assert.LessOrEqual(t, len(lines), 5, "Should be concise")
}
