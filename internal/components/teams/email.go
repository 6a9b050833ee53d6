package teams

import (
	"errors"
	"net/mail"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var errInvalidEmail = errors.New("invalid email address")

var lowerLocal = cases.Lower(language.Und)

// NormalizeEmail returns the canonical form used for storage and comparison:
// the local part lower-cased and the domain in lower-case ASCII (IDNA) form.
// Display-name forms such as "Ann <ann@x.com>" are rejected.
func NormalizeEmail(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", errInvalidEmail
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Name != "" || addr.Address != s {
		return "", errInvalidEmail
	}

	at := strings.LastIndexByte(addr.Address, '@')
	if at <= 0 || at == len(addr.Address)-1 {
		return "", errInvalidEmail
	}
	local := lowerLocal.String(addr.Address[:at])
	domain, err := idna.Lookup.ToASCII(addr.Address[at+1:])
	if err != nil || !strings.Contains(domain, ".") {
		return "", errInvalidEmail
	}
	return local + "@" + strings.ToLower(domain), nil
}

// sameEmail compares two addresses in normalized form. Unparseable input never matches.
func sameEmail(a, b string) bool {
	na, err := NormalizeEmail(a)
	if err != nil {
		return false
	}
	nb, err := NormalizeEmail(b)
	if err != nil {
		return false
	}
	return na == nb
}
