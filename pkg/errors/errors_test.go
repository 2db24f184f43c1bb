package errors

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneDoesNotShareFields(t *testing.T) {
	base := Invalid("reason", "rejection reason is required")
	clone := Clone(base, "")
	clone.WithField("totalQty", "must be at least 0")

	assert.Len(t, base.Fields, 1)
	assert.Len(t, clone.Fields, 2)
	assert.Equal(t, base.Message, clone.Message)
}

func TestErrorsMatchByCode(t *testing.T) {
	wrapped := fmt.Errorf("resolve flag 3: %w", Clone(ErrIllegalState, "flag 3 is not pending"))

	assert.True(t, errors.Is(wrapped, ErrIllegalState))
	assert.False(t, errors.Is(wrapped, ErrInFlight))
	assert.True(t, IsCode(wrapped, "ILLEGAL_STATE"))
}

func TestFromErrorWrapsUnknownErrors(t *testing.T) {
	err := FromError(sql.ErrConnDone)

	assert.Equal(t, ErrInternal.Code, err.Code)
	assert.Equal(t, http.StatusInternalServerError, err.Status)
	assert.True(t, errors.Is(err, sql.ErrConnDone))
	assert.Nil(t, FromError(nil))
}

func TestUpstreamErrorMessage(t *testing.T) {
	err := Wrap(errors.New("dial tcp: connection refused"), ErrUpstream.Code, ErrUpstream.Status, "failed to fetch flags")

	assert.Equal(t, "failed to fetch flags: dial tcp: connection refused", err.Error())
	assert.Equal(t, http.StatusBadGateway, err.Status)
}
