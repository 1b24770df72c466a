package validate

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

var (
	// letters, digits, spaces and dashes: covers ES, PT, FR, UK, NL postcodes
	rePostal  = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 -]{1,9}$`)
	reEmail   = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	rePhone   = regexp.MustCompile(`^\+?[0-9 ()-]{6,20}$`)
	reCountry = regexp.MustCompile(`^[A-Z]{2}$`)
	reIdemKey = regexp.MustCompile(`^[A-Za-z0-9_:.-]{8,128}$`)
)

const (
	// MaxQty only guards against absurd input; stock decides the real limit.
	MaxQty      = 10000
	MaxNotesLen = 500
)

// Errors collects per-field messages; handlers return it as "details".
type Errors map[string]string

func (e Errors) Add(field, msg string) {
	if _, dup := e[field]; !dup {
		e[field] = msg
	}
}

func (e Errors) OK() bool { return len(e) == 0 }

// ID validates a resource id (uuid).
func ID(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if _, err := uuid.Parse(s); err != nil {
		return "", false
	}
	return strings.ToLower(s), true
}

func Qty(n int) bool { return n >= 1 && n <= MaxQty }

func Email(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) == 0 || len(s) > 254 {
		return "", false
	}
	return s, reEmail.MatchString(s)
}

// Password enforces a length window for login checks; bcrypt ignores
// anything past 72 bytes.
func Password(s string) bool {
	return len(s) >= 6 && len(s) <= 72
}

// Text trims s and checks 1..max runes.
func Text(s string, max int) (string, bool) {
	s = strings.TrimSpace(s)
	n := utf8.RuneCountInString(s)
	return s, n > 0 && n <= max
}

// OptionalText is Text that also accepts the empty string.
func OptionalText(s string, max int) (string, bool) {
	s = strings.TrimSpace(s)
	return s, utf8.RuneCountInString(s) <= max
}

func PostalCode(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, rePostal.MatchString(s)
}

// Country normalizes an ISO-3166 alpha-2 code; empty means ES.
func Country(s string) (string, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "ES", true
	}
	return s, reCountry.MatchString(s)
}

func Phone(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", true
	}
	return s, rePhone.MatchString(s)
}

func Notes(s string) (string, bool) { return OptionalText(s, MaxNotesLen) }

func IdempotencyKey(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", true
	}
	return s, reIdemKey.MatchString(s)
}
