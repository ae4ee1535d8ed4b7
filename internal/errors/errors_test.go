package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataErrorUnwrapsToSentinel(t *testing.T) {
	err := Wrap(NewDataError("chain", "SPY", "no rows", ErrMissingData), "load chain")

	assert.True(t, Is(err, ErrMissingData))

	var de *DataError
	require.True(t, As(err, &de))
	assert.Equal(t, "SPY", de.Symbol)
	assert.Contains(t, err.Error(), "load chain")
}

func TestValidationErrorsListsEveryField(t *testing.T) {
	errs := ValidationErrors{
		{Field: "legs[0].qty", Code: "ERR_MIN", Message: "qty must be at least 1"},
		{Field: "legs[1].strike", Code: "ERR_GT", Message: "strike must be greater than 0"},
	}
	var err error = errs

	assert.True(t, Is(err, ErrInputValidation))
	assert.Equal(t, []string{"legs[0].qty", "legs[1].strike"}, errs.Fields())
	assert.Contains(t, err.Error(), "legs[1].strike")
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "ctx"))
	assert.Nil(t, Wrapf(nil, "ctx %d", 1))
	assert.EqualError(t, Wrapf(fmt.Errorf("boom"), "step %d", 2), "step 2: boom")
}

func TestSkipReason(t *testing.T) {
	reason, ok := SkipReason(NewDataError("chain", "SPY", "no rows", ErrMissingData))
	assert.True(t, ok)
	assert.Equal(t, ReasonNoData, reason)

	reason, ok = SkipReason(fmt.Errorf("closes: %w", ErrInsufficientHistory))
	assert.True(t, ok)
	assert.Equal(t, ReasonInsufficientHistory, reason)

	_, ok = SkipReason(NewComputeError("gex", "SPY", ErrDatabaseError))
	assert.False(t, ok)
}
