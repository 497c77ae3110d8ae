package validation

import (
	"fmt"
	"strconv"
	"strings"

	"xui-shop-core/internal/constants"
	apperrors "xui-shop-core/internal/errors"
	"xui-shop-core/internal/helpers"
)

// ValidateDays validates a number of days to grant
func ValidateDays(days int) error {
	if days < 1 {
		return &apperrors.ValidationError{Field: "days", Message: "must be at least 1 day"}
	}

	if days > constants.MaxGrantDays {
		return &apperrors.ValidationError{Field: "days", Message: fmt.Sprintf("cannot exceed %d days", constants.MaxGrantDays)}
	}

	return nil
}

// ParseTelegramID validates and parses a telegram user id
func ParseTelegramID(idStr string) (int64, error) {
	idStr = strings.TrimSpace(idStr)
	if idStr == "" || !helpers.IsDigits(idStr) {
		return 0, &apperrors.ValidationError{Field: "tg_id", Message: "must be a positive number"}
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return 0, &apperrors.ValidationError{Field: "tg_id", Message: "must be a positive number"}
	}

	return id, nil
}
