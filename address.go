package xchg

import (
	"regexp"
	"strings"
)

// addressPattern matches `local@domain` where local is non-empty and
// domain contains at least one dot. Validated once, up front, rather than
// threaded through every call site that needs an address.
var addressPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ValidateAddress checks that addr has the shape `local@domain` required
// by the Exchange, returning a *Error of KindInvalidAddress if not.
func ValidateAddress(addr string) error {
	if addr == "" || !addressPattern.MatchString(addr) {
		return errInvalidAddress(addr, nil)
	}
	at := strings.IndexByte(addr, '@')
	local, domain := addr[:at], addr[at+1:]
	if local == "" || domain == "" || !strings.Contains(domain, ".") {
		return errInvalidAddress(addr, nil)
	}
	return nil
}
