package parser

import (
	"github.com/emersion/go-message"
)

// Message is a parsed email: a tree of parts rooted at the top-level entity
type Message struct {
	Root *Part
}

// Part is one MIME entity of a message.
//
// A multipart container keeps its boundary, preamble and children. A leaf
// keeps its raw, still transfer-encoded body. A message/rfc822 leaf whose
// content could be parsed also carries the embedded message root.
type Part struct {
	Header   message.Header
	Body     []byte // raw body bytes as they appeared in the input
	Boundary string
	Preamble []byte
	Children []*Part
	Embedded *Part

	envelope  []byte // mbox "From " line in front of a top-level header
	rawHeader []byte // header as read, set when lines were left out of Header
	dirty     bool
}

// IsMultipart reports whether the part was split into child parts
func (p *Part) IsMultipart() bool {
	return p.Boundary != "" && len(p.Children) > 0
}

// Modified reports whether the part or anything below it was rewritten
func (p *Part) Modified() bool {
	if p.dirty {
		return true
	}
	if p.Embedded != nil && p.Embedded.Modified() {
		return true
	}
	for _, child := range p.Children {
		if child.Modified() {
			return true
		}
	}
	return false
}
