package redact

import (
	"regexp"

	"github.com/subh7987/hyper-link-remover/internal/parser"
)

// rule is one recipient heuristic: a header pattern and the capture group
// holding the address
type rule struct {
	name  string
	re    *regexp.Regexp
	group int
}

// rules are evaluated in order, first match wins
var rules = []rule{
	{
		name:  "Delivered-To",
		re:    regexp.MustCompile(`(?im)^Delivered-To:[ \t]*<?([\w.-]+@[\w.-]+\.\w+)>?`),
		group: 1,
	},
	{
		name:  "Return-Path",
		re:    regexp.MustCompile(`(?im)^Return-Path:[ \t]*<?([\w.-]+@[\w.-]+\.\w+)>?`),
		group: 1,
	},
	{
		// Lazy prefix so a display name never eats into the local part
		name:  "To",
		re:    regexp.MustCompile(`(?im)^To:[^\r\n]*?<?([\w.-]+@[\w.-]+\.\w+)>?`),
		group: 1,
	},
}

var foldRe = regexp.MustCompile(`\r?\n[ \t]+`)

// ExtractRecipient finds the primary recipient address in the header block
// of a raw message and names the header it came from. Folded header lines
// are joined before matching.
func ExtractRecipient(raw string) (addr, header string, ok bool) {
	headers := foldRe.ReplaceAllString(parser.HeaderBlock(raw), " ")

	for _, r := range rules {
		m := r.re.FindStringSubmatch(headers)
		if m == nil || m[r.group] == "" {
			continue
		}
		return m[r.group], r.name, true
	}
	return "", "", false
}
