package batch

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-mbox"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"

	"github.com/subh7987/hyper-link-remover/internal/cleaner"
)

// ErrEmptyMailbox is reported for a mailbox without messages
var ErrEmptyMailbox = errors.New("mailbox contains no messages")

// cleanMbox cleans every message of a mailbox and writes them to a new
// mailbox. The file reason is the most significant message outcome.
func (c *Cleaner) cleanMbox(name string, data []byte) FileResult {
	res := FileResult{Filename: name}

	var buf bytes.Buffer
	r := mbox.NewReader(bytes.NewReader(data))
	w := mbox.NewWriter(&buf)

	for {
		msgReader, err := r.NextMessage()
		if err == io.EOF {
			break
		}
		if err != nil {
			setError(&res, fmt.Errorf("failed to read message %d: %w", res.Messages+1, err))
			return res
		}

		raw, err := io.ReadAll(msgReader)
		if err != nil {
			setError(&res, fmt.Errorf("failed to read message %d: %w", res.Messages+1, err))
			return res
		}

		out := cleaner.Process(raw, c.mode)
		res.Messages++
		c.logProcessed(fmt.Sprintf("%s#%d", name, res.Messages), &out)
		if out.Changed() {
			res.Changed = true
		}
		if res.Outcome == "" || out.Outcome.Rank() > res.Outcome.Rank() {
			res.Outcome = out.Outcome
		}
		if res.Preview == "" {
			res.Preview = preview(out.Output)
		}

		from, date := envelope(out.Output)
		mw, err := w.CreateMessage(from, date)
		if err != nil {
			setError(&res, fmt.Errorf("failed to write message %d: %w", res.Messages, err))
			return res
		}
		if _, err := mw.Write(out.Output); err != nil {
			setError(&res, fmt.Errorf("failed to write message %d: %w", res.Messages, err))
			return res
		}
	}

	if err := w.Close(); err != nil {
		setError(&res, fmt.Errorf("failed to finish mailbox: %w", err))
		return res
	}

	if res.Messages == 0 {
		setError(&res, ErrEmptyMailbox)
		return res
	}

	res.Reason = string(res.Outcome)
	res.Output = buf.Bytes()
	return res
}

// envelope derives the mbox "From " line values from the message headers
func envelope(raw []byte) (string, time.Time) {
	from, date := "MAILER-DAEMON", time.Unix(0, 0).UTC()

	th, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return from, date
	}
	h := mail.Header{Header: message.Header{Header: th}}

	if addrs, err := h.AddressList("From"); err == nil && len(addrs) > 0 && addrs[0].Address != "" {
		from = addrs[0].Address
	}
	if t, err := h.Date(); err == nil && !t.IsZero() {
		date = t
	}
	return from, date
}
