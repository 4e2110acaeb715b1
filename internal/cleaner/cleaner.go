// Package cleaner rewrites one raw email: it masks the recipient address and
// neutralizes hyperlinks in HTML parts, leaving every other part as it was.
package cleaner

import (
	"github.com/subh7987/hyper-link-remover/internal/neutralizer"
	"github.com/subh7987/hyper-link-remover/internal/parser"
	"github.com/subh7987/hyper-link-remover/internal/redact"
)

// Result describes one processed message
type Result struct {
	Output  []byte // CRLF-normalized message
	Outcome Outcome

	Recipient       string // empty when no heuristic matched
	RecipientHeader string

	HTMLFound     bool
	LinksChanged  bool // the neutralizer touched at least one HTML part
	BodyChanged   bool // at least one text part was rewritten
	EmailMasked   bool
	Substitutions int // address occurrences replaced
	HTMLParts     int
	TreeFallbacks int  // HTML parts the tree stages could not parse, only the textual rewrites applied
	Parsed        bool // false when the input was handled as opaque text
}

// Changed reports whether anything in the message was rewritten
func (r *Result) Changed() bool {
	return r.LinksChanged || r.EmailMasked || r.BodyChanged
}

// Process cleans a raw message. It never fails: malformed header lines are
// tolerated by the parser, and input it still cannot read is treated as
// opaque text, so redaction and line ending normalization still apply.
func Process(raw []byte, mode Mode) Result {
	if mode != ModeLinks {
		mode = ModeFull
	}

	res := Result{}
	red := redact.New("")
	data := raw

	if mode == ModeFull {
		if addr, header, ok := redact.ExtractRecipient(string(raw)); ok {
			res.Recipient, res.RecipientHeader = addr, header
			red = redact.New(addr)

			var n int
			data, n = red.Bytes(raw)
			res.Substitutions += n
		}
	}

	msg, err := parser.Parse(data)
	if err == nil {
		res.Parsed = true
		_ = msg.Walk(func(p *parser.Part) error {
			rewritePart(p, mode, red, &res)
			return nil
		})
	}

	res.EmailMasked = res.Recipient != "" && res.Substitutions > 0
	res.Outcome = classify(mode, &res)

	out := data
	if res.Parsed && res.BodyChanged {
		if serialized, err := msg.Bytes(); err == nil {
			out = serialized
		}
	}
	res.Output = parser.NormalizeCRLF(out)

	return res
}

// rewritePart applies redaction and link neutralization to one leaf. The
// part is only re-encoded when its decoded content changed.
func rewritePart(p *parser.Part, mode Mode, red *redact.Redactor, res *Result) {
	if p.IsMultipart() {
		return
	}

	contentType := p.ContentType()
	if contentType != "text/html" && contentType != "text/plain" {
		return
	}

	if contentType == "text/html" {
		res.HTMLFound = true
		res.HTMLParts++
	} else if mode != ModeFull || !red.Enabled() {
		return
	}

	text, err := p.Text()
	if err != nil {
		return
	}

	updated := text
	if mode == ModeFull {
		var n int
		updated, n = red.String(updated)
		res.Substitutions += n
	}

	if contentType == "text/html" {
		var stats neutralizer.Stats
		updated, stats = neutralizer.Neutralize(updated)
		if stats.Touched() {
			res.LinksChanged = true
		}
		if stats.ParseFailure {
			res.TreeFallbacks++
		}
	}

	if updated == text {
		return
	}
	if err := p.SetText(updated); err != nil {
		return
	}
	res.BodyChanged = true
}
