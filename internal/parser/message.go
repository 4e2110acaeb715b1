package parser

import (
	"bytes"
	"fmt"
	"io"
	"mime/quotedprintable"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/textproto"
	"golang.org/x/text/encoding/ianaindex"
	"jaytaylor.com/html2text"
)

// Walk visits every part depth-first, containers before their children and
// message/rfc822 leaves before the embedded message
func (m *Message) Walk(fn func(*Part) error) error {
	return m.Root.walk(fn)
}

func (p *Part) walk(fn func(*Part) error) error {
	if err := fn(p); err != nil {
		return err
	}
	if p.Embedded != nil {
		if err := p.Embedded.walk(fn); err != nil {
			return err
		}
	}
	for _, child := range p.Children {
		if err := child.walk(fn); err != nil {
			return err
		}
	}
	return nil
}

// Bytes serializes the message. Parts that were not rewritten are emitted
// from their original bytes.
func (m *Message) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := m.Root.writeTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to serialize message: %w", err)
	}
	return buf.Bytes(), nil
}

// Subject returns the decoded Subject header
func (m *Message) Subject() string {
	return decodeMIMEWord(m.Root.Header.Get("Subject"))
}

// HTMLBody returns the decoded content of the first text/html part
func (m *Message) HTMLBody() (string, bool) {
	return m.firstText("text/html")
}

// TextPreview returns up to maxRunes characters of readable body text.
// HTML bodies are converted to plain text first.
func (m *Message) TextPreview(maxRunes int) string {
	var text string
	if body, ok := m.HTMLBody(); ok {
		converted, err := html2text.FromString(body, html2text.Options{OmitLinks: true})
		if err == nil {
			text = converted
		}
	}
	if text == "" {
		text, _ = m.firstText("text/plain")
	}

	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	return string([]rune(text)[:maxRunes]) + "..."
}

func (m *Message) firstText(contentType string) (string, bool) {
	var (
		found string
		ok    bool
	)
	_ = m.Walk(func(p *Part) error {
		if ok || p.IsMultipart() || p.ContentType() != contentType {
			return nil
		}
		text, err := p.Text()
		if err != nil {
			return nil
		}
		found, ok = text, true
		return nil
	})
	return found, ok
}

// ContentType returns the lower-cased media type, text/plain when the header
// is missing or unparsable
func (p *Part) ContentType() string {
	t, _, err := p.Header.ContentType()
	if err != nil {
		// Broken parameters still leave a usable media type
		t, _, _ = strings.Cut(t, ";")
		t = strings.ToLower(strings.TrimSpace(t))
	}
	if t == "" {
		return "text/plain"
	}
	return t
}

// Charset returns the lower-cased charset parameter, if any
func (p *Part) Charset() string {
	_, params, err := p.Header.ContentType()
	if err != nil {
		return ""
	}
	return strings.ToLower(params["charset"])
}

// Text decodes the transfer encoding and charset of a leaf body to UTF-8.
// Unknown charsets yield the undecoded bytes.
func (p *Part) Text() (string, error) {
	e, err := message.New(message.Header{Header: p.Header.Header.Copy()}, bytes.NewReader(p.Body))
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return "", fmt.Errorf("failed to decode part: %w", err)
	}
	if e == nil {
		return "", fmt.Errorf("failed to decode part")
	}

	data, err := io.ReadAll(e.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read part body: %w", err)
	}
	return string(data), nil
}

// SetText replaces the content of a leaf. The original charset is kept when
// it can represent the text, otherwise the part switches to UTF-8. The body
// is written as quoted-printable.
func (p *Part) SetText(text string) error {
	mediaType, params, err := p.Header.ContentType()
	if err != nil {
		mediaType = p.ContentType()
	}
	if params == nil {
		params = map[string]string{}
	}

	data, cs := encodeText(text, strings.ToLower(params["charset"]))
	params["charset"] = cs

	var buf bytes.Buffer
	qp := quotedprintable.NewWriter(&buf)
	if _, err := qp.Write(data); err != nil {
		return fmt.Errorf("failed to encode part: %w", err)
	}
	if err := qp.Close(); err != nil {
		return fmt.Errorf("failed to encode part: %w", err)
	}

	p.Header.SetContentType(mediaType, params)
	p.Header.Set("Content-Transfer-Encoding", "quoted-printable")
	p.Body = buf.Bytes()
	p.dirty = true
	return nil
}

// encodeText converts UTF-8 text into the named charset, falling back to
// UTF-8 when the charset is unknown or cannot represent the text
func encodeText(text, cs string) ([]byte, string) {
	switch cs {
	case "", "utf-8", "utf8":
		return []byte(text), "utf-8"
	case "us-ascii", "ascii":
		if isASCII(text) {
			return []byte(text), cs
		}
		return []byte(text), "utf-8"
	}

	enc, err := ianaindex.MIME.Encoding(cs)
	if err != nil || enc == nil {
		return []byte(text), "utf-8"
	}
	data, err := enc.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return []byte(text), "utf-8"
	}
	return data, cs
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func (p *Part) writeTo(w io.Writer) error {
	if _, err := w.Write(p.envelope); err != nil {
		return err
	}
	if p.rawHeader != nil && !p.dirty {
		if _, err := w.Write(p.rawHeader); err != nil {
			return err
		}
	} else if err := textproto.WriteHeader(w, p.Header.Header); err != nil {
		return err
	}
	return p.writeBody(w)
}

// writeBody emits the part body. Delimiters of a rebuilt container are
// written by hand so that boundaries outside the RFC 2046 alphabet, which
// real mail does contain, survive unchanged.
func (p *Part) writeBody(w io.Writer) error {
	switch {
	case p.dirty || !p.Modified():
		_, err := w.Write(p.Body)
		return err
	case p.Embedded != nil:
		return p.Embedded.writeTo(w)
	}

	if _, err := w.Write(p.Preamble); err != nil {
		return err
	}
	for i, child := range p.Children {
		delim := "\r\n--" + p.Boundary + "\r\n"
		if i == 0 {
			delim = "--" + p.Boundary + "\r\n"
		}
		if _, err := io.WriteString(w, delim); err != nil {
			return err
		}
		if err := child.writeTo(w); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "\r\n--"+p.Boundary+"--\r\n")
	return err
}

// NormalizeCRLF rewrites every line ending (CRLF, LF or a lone CR) to CRLF
func NormalizeCRLF(b []byte) []byte {
	b = bytes.ReplaceAll(b, []byte("\r\n"), []byte("\n"))
	b = bytes.ReplaceAll(b, []byte("\r"), []byte("\n"))
	return bytes.ReplaceAll(b, []byte("\n"), []byte("\r\n"))
}
