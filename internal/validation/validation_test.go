package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "xui-shop-core/internal/errors"
)

func TestValidateDays(t *testing.T) {
	assert.NoError(t, ValidateDays(1))
	assert.NoError(t, ValidateDays(3650))

	for _, days := range []int{0, -5, 3651} {
		err := ValidateDays(days)
		require.Error(t, err, days)
		var vErr *apperrors.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "days", vErr.Field)
	}
}

func TestParseTelegramID(t *testing.T) {
	id, err := ParseTelegramID("123456789")
	require.NoError(t, err)
	assert.Equal(t, int64(123456789), id)

	for _, bad := range []string{"", "-1", "0", "12a", "99999999999999999999", "1.5"} {
		_, err := ParseTelegramID(bad)
		assert.Error(t, err, bad)
	}
}
