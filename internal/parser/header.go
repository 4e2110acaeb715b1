package parser

import (
	"bufio"
	"bytes"
	"fmt"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/textproto"
)

var envelopePrefix = []byte("From ")

// readHeader fills in the header and body of part from data. It does not
// fail on malformed header lines.
//
// With envelope set, a leading mbox "From " line is split off and written
// back in front of the header. A first line that is neither a field nor a
// continuation means the entity has no header at all. Later lines of that
// kind, and continuations with no field to continue, are left out of the
// parsed header; the header bytes are then kept as they were so that an
// unmodified part is written back unchanged.
func readHeader(part *Part, data []byte, envelope bool) error {
	if envelope && bytes.HasPrefix(data, envelopePrefix) {
		n := lineEnd(data, 0)
		part.envelope = data[:n]
		data = data[n:]
	}

	var (
		fields    bytes.Buffer
		repaired  bool
		inField   bool
		bodyStart = len(data)
	)
	for pos := 0; pos < len(data); {
		end := lineEnd(data, pos)
		line := bytes.TrimRight(data[pos:end], "\r\n")

		if len(line) == 0 {
			bodyStart = end
			break
		}

		switch {
		case line[0] == ' ' || line[0] == '\t':
			if inField {
				fields.Write(line)
				fields.WriteString("\r\n")
			} else {
				repaired = true
			}
		case isHeaderField(line):
			fields.Write(line)
			fields.WriteString("\r\n")
			inField = true
		case pos == 0:
			part.Header = message.Header{}
			part.rawHeader = []byte{}
			part.Body = data
			return nil
		default:
			repaired = true
			inField = false
		}
		pos = end
	}
	fields.WriteString("\r\n")

	h, err := textproto.ReadHeader(bufio.NewReader(&fields))
	if err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}

	part.Header = message.Header{Header: h}
	if repaired {
		part.rawHeader = data[:bodyStart]
	}
	part.Body = data[bodyStart:]
	return nil
}

// isHeaderField reports whether line starts a "Name: value" field
func isHeaderField(line []byte) bool {
	i := bytes.IndexByte(line, ':')
	if i <= 0 {
		return false
	}
	name := bytes.TrimRight(line[:i], " \t")
	if len(name) == 0 {
		return false
	}
	for _, c := range name {
		if c < '!' || c > '~' {
			return false
		}
	}
	return true
}

// lineEnd returns the offset just past the line starting at pos
func lineEnd(data []byte, pos int) int {
	if i := bytes.IndexByte(data[pos:], '\n'); i >= 0 {
		return pos + i + 1
	}
	return len(data)
}
