package model

import "regexp"

// Stacks principals are c32check encoded: S + version char + 28..41 symbols.
var stacksAddressRe = regexp.MustCompile(`^S[PMTN][0-9A-HJKMNP-TV-Z]{28,41}$`)

// ValidStacksAddress reports whether addr has the shape of a standard Stacks
// address. The checksum is not verified.
func ValidStacksAddress(addr string) bool {
	return stacksAddressRe.MatchString(addr)
}
