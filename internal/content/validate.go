package content

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"example.com/blogfeed/internal/apperr"
)

const minPasswordLength = 8

func validateUserInput(email, password string) apperr.Fields {
	var errs apperr.Fields

	if !isEmail(email) {
		errs.Add("Invalid email")
	}
	if utf8.RuneCountInString(password) < minPasswordLength {
		errs.Add("Password should contain at least 8 characters")
	}

	return errs
}

func validatePostInput(title, content string) apperr.Fields {
	var errs apperr.Fields

	if strings.TrimSpace(title) == "" {
		errs.Add("Title is required")
	}
	if strings.TrimSpace(content) == "" {
		errs.Add("Content is required")
	}

	return errs
}

// isEmail accepts a bare address with a dotted domain, no display name.
func isEmail(s string) bool {
	if s == "" || strings.TrimSpace(s) != s {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndex(s, "@")
	domain := s[at+1:]
	return strings.Contains(domain, ".") && !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}
