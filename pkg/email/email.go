// Package email derives display values from email addresses.
package email

import (
	"strings"
	"unicode"
)

// maxUsernameLen matches the default Discourse username limit.
const maxUsernameLen = 20

// DeriveUsername builds a forum handle from the local part of an address for
// accounts without a username. Plus-suffixes are dropped and separators become
// underscores: "Rider.Smith+bikes@example.com" yields "rider_smith".
func DeriveUsername(address string) string {
	local := address
	if at := strings.LastIndexByte(address, '@'); at >= 0 {
		local = address[:at]
	}
	if plus := strings.IndexByte(local, '+'); plus >= 0 {
		local = local[:plus]
	}

	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(local) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}

	name := strings.TrimRight(b.String(), "_")
	if len(name) > maxUsernameLen {
		name = strings.TrimRight(name[:maxUsernameLen], "_")
	}
	if name == "" {
		return "user"
	}
	return name
}
