package redact

import (
	"regexp"
)

const (
	// BracketedPlaceholder replaces <address>
	BracketedPlaceholder = "<[email]>"
	// Placeholder replaces a bare address
	Placeholder = "[email]"
)

// Redactor masks every occurrence of one email address. The zero value and
// a Redactor built from an empty address leave input unchanged.
type Redactor struct {
	addr      string
	bracketed *regexp.Regexp
	bare      *regexp.Regexp
}

// New creates a redactor for addr. The address is matched literally and
// case-insensitively, never as a generic email pattern.
func New(addr string) *Redactor {
	if addr == "" {
		return &Redactor{}
	}

	quoted := regexp.QuoteMeta(addr)
	return &Redactor{
		addr:      addr,
		bracketed: regexp.MustCompile(`(?i)<` + quoted + `>`),
		bare:      regexp.MustCompile(`(?i)` + quoted),
	}
}

// Address returns the address being masked
func (r *Redactor) Address() string {
	return r.addr
}

// Enabled reports whether the redactor has an address to mask
func (r *Redactor) Enabled() bool {
	return r.bare != nil
}

// String masks the address in s and returns the number of substitutions
func (r *Redactor) String(s string) (string, int) {
	if !r.Enabled() {
		return s, 0
	}

	n := len(r.bracketed.FindAllStringIndex(s, -1))
	s = r.bracketed.ReplaceAllLiteralString(s, BracketedPlaceholder)

	bare := len(r.bare.FindAllStringIndex(s, -1))
	s = r.bare.ReplaceAllLiteralString(s, Placeholder)

	return s, n + bare
}

// Bytes masks the address in b without decoding it, so byte sequences that
// are not valid UTF-8 pass through untouched
func (r *Redactor) Bytes(b []byte) ([]byte, int) {
	if !r.Enabled() {
		return b, 0
	}

	n := len(r.bracketed.FindAllIndex(b, -1))
	b = r.bracketed.ReplaceAllLiteral(b, []byte(BracketedPlaceholder))

	bare := len(r.bare.FindAllIndex(b, -1))
	b = r.bare.ReplaceAllLiteral(b, []byte(Placeholder))

	return b, n + bare
}
