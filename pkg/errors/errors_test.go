package errors

import (
	"database/sql"
	"fmt"
	"net/http"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestFromErrorKeepsTypedErrors(t *testing.T) {
	typed := Clone(ErrNotFound, "group not found")
	wrapped := fmt.Errorf("outer: %w", typed)

	got := FromError(wrapped)
	assert.Equal(t, http.StatusNotFound, got.Status)
	assert.Equal(t, "group not found", got.Message)
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	got := FromError(sql.ErrConnDone)
	assert.Equal(t, ErrInternal.Code, got.Code)
	assert.ErrorIs(t, got, sql.ErrConnDone)
}

func TestFromStoreTranslatesPostgresCodes(t *testing.T) {
	unique := fmt.Errorf("create group: %w", &pq.Error{Code: "23505"})
	restrict := fmt.Errorf("delete group: %w", &pq.Error{Code: "23503"})
	malformed := fmt.Errorf("set attendance presence: %w", &pq.Error{Code: "22P02"})

	assert.Equal(t, http.StatusConflict, FromStore(unique, "dup", "ref", "boom").Status)
	assert.Equal(t, http.StatusPreconditionFailed, FromStore(restrict, "dup", "ref", "boom").Status)
	assert.Equal(t, http.StatusBadRequest, FromStore(malformed, "dup", "ref", "boom").Status)
	assert.True(t, IsInvalidIdentifier(malformed))
	assert.Equal(t, http.StatusInternalServerError, FromStore(sql.ErrTxDone, "dup", "ref", "boom").Status)
}

func TestWithFieldsDoesNotMutateOriginal(t *testing.T) {
	got := WithFields(ErrValidation, map[string]string{"year": "required"})
	assert.Equal(t, "required", got.Fields["year"])
	assert.Nil(t, ErrValidation.Fields)
}
