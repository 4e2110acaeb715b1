package cleaner

import (
	"errors"
	"fmt"
	"strings"
)

// Mode selects what Process rewrites
type Mode string

const (
	// ModeFull masks the recipient address and neutralizes links
	ModeFull Mode = "full"
	// ModeLinks only neutralizes links in HTML parts
	ModeLinks Mode = "links"
)

// ErrUnknownMode is returned by ParseMode for unsupported names
var ErrUnknownMode = errors.New("unknown mode")

// ParseMode converts a user supplied mode name
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "full", "clean", "full-clean":
		return ModeFull, nil
	case "links", "links-only", "linksonly":
		return ModeLinks, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Outcome is the per-file classification label
type Outcome string

const (
	OutcomeNoHTML             Outcome = "No HTML content"
	OutcomeLinksAndEmails     Outcome = "Links removed + Emails masked"
	OutcomeLinksRemoved       Outcome = "Links removed"
	OutcomeHyperlinksDisabled Outcome = "Hyperlinks removed/disabled"
	OutcomeEmailsMasked       Outcome = "Emails masked"
	OutcomeNoHyperlink        Outcome = "No hyperlink found"
	OutcomeNoChanges          Outcome = "No changes"
	OutcomeHTMLUnchanged      Outcome = "HTML present but unchanged"
)

// Rank orders outcomes by significance, used to summarize several messages
// (e.g. a mailbox) with one label
func (o Outcome) Rank() int {
	switch o {
	case OutcomeLinksAndEmails:
		return 5
	case OutcomeLinksRemoved, OutcomeHyperlinksDisabled:
		return 4
	case OutcomeEmailsMasked:
		return 3
	case OutcomeNoHyperlink, OutcomeNoChanges, OutcomeHTMLUnchanged:
		return 2
	case OutcomeNoHTML:
		return 1
	}
	return 0
}

// classify picks the label for a processed message
func classify(mode Mode, r *Result) Outcome {
	if !r.HTMLFound {
		return OutcomeNoHTML
	}

	if mode == ModeLinks {
		switch {
		case r.LinksChanged && r.BodyChanged:
			return OutcomeHyperlinksDisabled
		case !r.LinksChanged:
			return OutcomeNoHyperlink
		default:
			return OutcomeHTMLUnchanged
		}
	}

	switch {
	case r.LinksChanged && r.EmailMasked:
		return OutcomeLinksAndEmails
	case r.LinksChanged:
		return OutcomeLinksRemoved
	case r.EmailMasked:
		return OutcomeEmailsMasked
	default:
		return OutcomeNoChanges
	}
}
