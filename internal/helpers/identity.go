package helpers

import (
	"regexp"
	"strconv"
)

var leadingDigits = regexp.MustCompile(`^(\d+)`)

// EmailForUser builds the panel email for a telegram user in a service
// Например: EmailForUser(42, "") -> "42", EmailForUser(42, "-obhod") -> "42-obhod"
func EmailForUser(telegramID int64, suffix string) string {
	return strconv.FormatInt(telegramID, 10) + suffix
}

// ExtractTelegramID parses the leading digit run of a panel email.
// Emails that do not start with a digit do not belong to the registry's
// identity scheme and report false.
func ExtractTelegramID(email string) (int64, bool) {
	match := leadingDigits.FindStringSubmatch(email)
	if match == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// IsDigits reports whether s is a non-empty run of ASCII digits
func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
