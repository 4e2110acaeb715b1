package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/textproto"
	"golang.org/x/text/encoding/charmap"
)

// maxDepth bounds multipart and message/rfc822 nesting
const maxDepth = 32

func init() {
	// Register additional charsets that are commonly used in emails
	charset.RegisterEncoding("windows-1252", charmap.Windows1252)
	charset.RegisterEncoding("iso-8859-1", charmap.ISO8859_1)
	charset.RegisterEncoding("iso-8859-15", charmap.ISO8859_15)
}

// ParseEMLFile parses an .eml file into a message tree
func ParseEMLFile(filePath string) (*Message, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	return ParseEML(f)
}

// ParseEML parses an email from a reader
func ParseEML(r io.Reader) (*Message, error) {
	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, r); err != nil {
		return nil, fmt.Errorf("failed to read email: %w", err)
	}
	return Parse(buf.Bytes())
}

// Parse builds a message tree from raw bytes.
//
// Malformed header lines never stop parsing, see readHeader. Broken
// multipart bodies and undecodable embedded messages degrade to opaque
// leaves that are written back unchanged.
func Parse(raw []byte) (*Message, error) {
	root, err := parsePart(raw, 0)
	if err != nil {
		return nil, err
	}
	return &Message{Root: root}, nil
}

func parsePart(raw []byte, depth int) (*Part, error) {
	part := &Part{}
	if err := readHeader(part, raw, depth == 0); err != nil {
		return nil, err
	}

	if depth < maxDepth {
		expand(part, depth)
	}

	return part, nil
}

// expand descends into multipart containers and embedded messages
func expand(part *Part, depth int) {
	mediaType, params, _ := part.Header.ContentType()
	switch {
	case strings.HasPrefix(mediaType, "multipart/") && params["boundary"] != "":
		splitMultipart(part, params["boundary"], depth)
	case mediaType == "message/rfc822" && isIdentityEncoding(part.Header.Get("Content-Transfer-Encoding")):
		if embedded, err := parsePart(part.Body, depth+1); err == nil {
			part.Embedded = embedded
		}
	}
}

// splitMultipart fills in the children of a multipart container. A body with
// no readable part leaves the part as a leaf. Parts read before a broken or
// missing closing delimiter are kept.
func splitMultipart(part *Part, boundary string, depth int) {
	children, err := readParts(part.Body, boundary, depth)
	if err != nil {
		// The multipart reader rejects malformed part headers
		children = scanParts(part.Body, boundary, depth)
	}

	if len(children) == 0 {
		return
	}

	part.Boundary = boundary
	part.Preamble = preamble(part.Body, boundary)
	part.Children = children
}

// readParts splits a multipart body with the go-message multipart reader
func readParts(body []byte, boundary string, depth int) ([]*Part, error) {
	mr := textproto.NewMultipartReader(bytes.NewReader(body), boundary)

	var children []*Part
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return children, nil
		}
		if err != nil {
			return children, err
		}

		data, err := io.ReadAll(p)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
			return children, err
		}

		child := &Part{Header: message.Header{Header: p.Header}, Body: data}
		if depth+1 < maxDepth {
			expand(child, depth+1)
		}
		children = append(children, child)

		if err != nil {
			// No closing delimiter
			return children, nil
		}
	}
}

// scanParts cuts a multipart body at its delimiter lines and reads every
// part with readHeader. Without a closing delimiter the last part runs to
// the end of the body.
func scanParts(body []byte, boundary string, depth int) []*Part {
	delim := []byte("--" + boundary)

	var children []*Part
	start := -1
	add := func(end int) {
		if start < 0 {
			return
		}
		if end < start {
			end = start
		}
		if child, err := parsePart(body[start:end], depth+1); err == nil {
			children = append(children, child)
		}
	}

	for pos := 0; pos < len(body); {
		end := lineEnd(body, pos)
		line := bytes.TrimRight(body[pos:end], " \t\r\n")
		if rest, ok := bytes.CutPrefix(line, delim); ok && (len(rest) == 0 || string(rest) == "--") {
			// The line break before a delimiter belongs to the delimiter
			add(beforeLineBreak(body, pos))
			if len(rest) > 0 {
				return children
			}
			start = end
		}
		pos = end
	}
	add(len(body))

	return children
}

func beforeLineBreak(body []byte, pos int) int {
	switch {
	case pos >= 2 && body[pos-2] == '\r' && body[pos-1] == '\n':
		return pos - 2
	case pos >= 1 && body[pos-1] == '\n':
		return pos - 1
	}
	return pos
}

// preamble returns the bytes preceding the first boundary delimiter
func preamble(body []byte, boundary string) []byte {
	delim := []byte("--" + boundary)
	if bytes.HasPrefix(body, delim) {
		return nil
	}
	if i := bytes.Index(body, append([]byte("\n"), delim...)); i >= 0 {
		return body[:i+1]
	}
	return nil
}

func isIdentityEncoding(enc string) bool {
	switch strings.ToLower(strings.TrimSpace(enc)) {
	case "", "7bit", "8bit", "binary":
		return true
	}
	return false
}

// HeaderBlock returns the raw header section of a message, i.e. everything up
// to the first blank line
func HeaderBlock(emailContent string) string {
	end := len(emailContent)
	for _, sep := range []string{"\r\n\r\n", "\n\n"} {
		if i := strings.Index(emailContent, sep); i >= 0 && i < end {
			end = i
		}
	}
	return emailContent[:end]
}

// decodeMIMEWord decodes MIME-encoded words (RFC 2047)
// Example: =?UTF-8?Q?Invitaci=C3=B3n?= -> Invitación
func decodeMIMEWord(s string) string {
	dec := &mime.WordDecoder{CharsetReader: charset.Reader}
	decoded, err := dec.DecodeHeader(s)
	if err != nil {
		// If decoding fails, return original string
		return s
	}
	return decoded
}
