package batch

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-mbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/subh7987/hyper-link-remover/internal/cleaner"
)

const linkEmail = "From: shop@example.org\r\n" +
	"To: Jane <jane@example.com>\r\n" +
	"Subject: Deals\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>Hi jane@example.com, <a href=\"https://shop.example/deal\">open deal</a></p>\r\n"

const plainEmail = "From: friend@example.org\r\n" +
	"To: jane@example.com\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"see you\r\n"

func TestCleanAll_OrderAndFailures(t *testing.T) {
	c := New(cleaner.ModeFull, zap.NewNop()).WithConcurrency(3)

	inputs := []Input{
		{Name: "one.eml", Data: []byte(linkEmail)},
		{Name: "broken.eml", Err: errors.New("boom")},
		{Name: "two.eml", Data: []byte(plainEmail)},
		{Name: "three.eml", Data: []byte(linkEmail)},
	}

	results := c.CleanAll(inputs)
	require.Len(t, results, len(inputs))

	for i, in := range inputs {
		assert.Equal(t, in.Name, results[i].Filename, "Results keep input order")
	}

	assert.Equal(t, string(cleaner.OutcomeLinksAndEmails), results[0].Reason)
	assert.True(t, results[0].Changed)
	assert.NotContains(t, string(results[0].Output), "jane@example.com")
	assert.Contains(t, results[0].Preview, "open deal")

	assert.Error(t, results[1].Err)
	assert.Equal(t, "Error: failed to read file: boom", results[1].Reason)
	assert.False(t, results[1].Changed)
	assert.Nil(t, results[1].Output)

	assert.Equal(t, string(cleaner.OutcomeNoHTML), results[2].Reason)
	assert.Equal(t, string(cleaner.OutcomeLinksAndEmails), results[3].Reason)

	summary := Summarize(results)
	assert.Equal(t, 4, summary.TotalFound)
	assert.Equal(t, 3, summary.Changed, "Masking the address in the plain email counts as a change")
	assert.Equal(t, 0, summary.Unchanged)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, []string{"broken.eml"}, summary.FailedFiles)
}

func TestCleanAll_Empty(t *testing.T) {
	assert.Empty(t, New(cleaner.ModeLinks, nil).CleanAll(nil))
}

func TestCleanDir(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()

	files := map[string]string{
		"a.eml":          linkEmail,
		"nested/b.eml":   plainEmail,
		"nested/x.txt":   "ignored",
		"nested/c/d.eml": linkEmail,
	}
	for name, content := range files {
		path := filepath.Join(src, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}

	var (
		mu    sync.Mutex
		calls []int
	)
	progress := func(current, total int, name string) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 3, total)
		calls = append(calls, current)
	}

	summary, err := New(cleaner.ModeLinks, zap.NewNop()).WithConcurrency(2).CleanDir(src, dst, progress)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.TotalFound)
	assert.Equal(t, 2, summary.Changed)
	assert.Equal(t, 1, summary.Unchanged)
	assert.Equal(t, []int{1, 2, 3}, calls)

	out, err := os.ReadFile(filepath.Join(dst, "nested", "c", "d.eml"))
	require.NoError(t, err)
	assert.Contains(t, string(out), "jane@example.com", "Links mode keeps addresses")
	assert.NotContains(t, string(out), "shop.example")

	_, err = os.Stat(filepath.Join(dst, "nested", "x.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestCleanDir_MissingSource(t *testing.T) {
	_, err := New(cleaner.ModeFull, nil).CleanDir(filepath.Join(t.TempDir(), "missing"), t.TempDir(), nil)
	assert.Error(t, err)
}

var testDate = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func buildMbox(t *testing.T, messages ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := mbox.NewWriter(&buf)
	for _, m := range messages {
		mw, err := w.CreateMessage("sender@example.org", testDate)
		require.NoError(t, err)
		_, err = io.WriteString(mw, m)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func readMbox(t *testing.T, data []byte) []string {
	t.Helper()
	var messages []string
	r := mbox.NewReader(bytes.NewReader(data))
	for {
		mr, err := r.NextMessage()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		b, err := io.ReadAll(mr)
		require.NoError(t, err)
		messages = append(messages, string(b))
	}
	return messages
}

func TestCleanMbox(t *testing.T) {
	data := buildMbox(t, linkEmail, plainEmail)

	results := New(cleaner.ModeFull, zap.NewNop()).CleanAll([]Input{{Name: "inbox.mbox", Data: data}})
	require.Len(t, results, 1)
	res := results[0]

	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.Messages)
	assert.True(t, res.Changed)
	assert.Equal(t, cleaner.OutcomeLinksAndEmails, res.Outcome, "Most significant message outcome wins")
	assert.Equal(t, string(cleaner.OutcomeLinksAndEmails), res.Reason)

	messages := readMbox(t, res.Output)
	require.Len(t, messages, 2)
	for _, m := range messages {
		assert.NotContains(t, m, "jane@example.com")
	}
	assert.True(t, strings.Contains(messages[0], "open deal"))
	assert.NotContains(t, messages[0], "shop.example/deal")
}

func TestCleanMbox_Empty(t *testing.T) {
	results := New(cleaner.ModeFull, nil).CleanAll([]Input{{Name: "empty.mbox", Data: nil}})

	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, ErrEmptyMailbox)
	assert.Equal(t, "Error: "+ErrEmptyMailbox.Error(), results[0].Reason)
}

func TestEnvelope(t *testing.T) {
	from, date := envelope([]byte("From: Shop <shop@example.org>\r\nDate: Mon, 02 Jan 2006 15:04:05 +0000\r\n\r\nbody"))
	assert.Equal(t, "shop@example.org", from)
	assert.Equal(t, 2006, date.Year())

	from, date = envelope([]byte("not headers"))
	assert.Equal(t, "MAILER-DAEMON", from)
	assert.Equal(t, int64(0), date.Unix())
}

func TestWriteResults(t *testing.T) {
	dst := t.TempDir()
	results := []FileResult{
		{Filename: "a.eml", Output: []byte("cleaned a")},
		{Filename: "bad.eml", Err: errors.New("boom")},
		{Filename: "sub/b.mbox", Output: []byte("cleaned b")},
	}

	written, err := WriteResults(dst, results)
	require.NoError(t, err)
	assert.Equal(t, 2, written)

	b, err := os.ReadFile(filepath.Join(dst, "sub", "b.mbox"))
	require.NoError(t, err)
	assert.Equal(t, "cleaned b", string(b))

	_, err = os.Stat(filepath.Join(dst, "bad.eml"))
	assert.True(t, os.IsNotExist(err))
}

func TestCleanAll_LogsMessageDetails(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	c := New(cleaner.ModeFull, zap.New(core))

	c.CleanAll([]Input{{Name: "one.eml", Data: []byte(linkEmail)}})

	entries := logs.FilterMessage("Processed message").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "one.eml", fields["file"])
	assert.Equal(t, int64(1), fields["html_parts"])
	assert.Equal(t, true, fields["parsed"])
	assert.Equal(t, "To", fields["recipient_header"])
	assert.Equal(t, "batch", fields["module"])
	assert.Zero(t, logs.FilterMessage("HTML could not be parsed, only textual link rewrites applied").Len())
}
