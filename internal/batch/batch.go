// Package batch cleans many mail files concurrently. Files are independent,
// so they are spread over a worker pool; one failing file never stops the
// rest of the batch.
package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/subh7987/hyper-link-remover/internal/cleaner"
	"github.com/subh7987/hyper-link-remover/internal/logger"
	"github.com/subh7987/hyper-link-remover/internal/parser"
	"github.com/subh7987/hyper-link-remover/internal/scanner"
)

// previewRunes bounds the text preview kept per file
const previewRunes = 400

// Input is one file to clean
type Input struct {
	Name string // reported name, also the relative output path
	Data []byte
	Err  error // read failure, reported instead of cleaning
}

// FileResult is the outcome for one input file
type FileResult struct {
	Filename string
	Changed  bool
	Reason   string // outcome label, or "Error: <message>"
	Outcome  cleaner.Outcome
	Output   []byte
	Messages int    // messages cleaned, more than one for a mailbox
	Preview  string // plain-text preview of the cleaned content
	Err      error
}

// ProgressFunc is called after each finished file
type ProgressFunc func(current, total int, name string)

// Cleaner runs cleaner.Process over batches of files
type Cleaner struct {
	mode        cleaner.Mode
	log         *zap.Logger
	concurrency int // Number of concurrent workers
}

// New creates a batch cleaner
func New(mode cleaner.Mode, log *zap.Logger) *Cleaner {
	return &Cleaner{
		mode:        mode,
		log:         logger.Module(log, "batch"),
		concurrency: runtime.NumCPU(),
	}
}

// WithConcurrency sets the number of concurrent workers
func (c *Cleaner) WithConcurrency(workers int) *Cleaner {
	if workers < 1 {
		workers = 1
	}
	c.concurrency = workers
	return c
}

// Mode returns the cleaning mode
func (c *Cleaner) Mode() cleaner.Mode {
	return c.mode
}

// job is one unit of work: a file name and how to get its bytes
type job struct {
	index int
	name  string
	load  func() ([]byte, error)
}

// CleanAll cleans in-memory inputs. Results are in input order.
func (c *Cleaner) CleanAll(inputs []Input) []FileResult {
	jobs := make([]job, len(inputs))
	for i, in := range inputs {
		in := in
		jobs[i] = job{
			index: i,
			name:  in.Name,
			load: func() ([]byte, error) {
				return in.Data, in.Err
			},
		}
	}
	return c.run(jobs, nil, nil)
}

// Summary contains statistics about a directory run
type Summary struct {
	TotalFound  int
	Changed     int
	Unchanged   int
	Failed      int
	FailedFiles []string
	Results     []FileResult
}

// Summarize counts results
func Summarize(results []FileResult) *Summary {
	s := &Summary{
		TotalFound:  len(results),
		FailedFiles: make([]string, 0),
		Results:     results,
	}
	for _, r := range results {
		switch {
		case r.Err != nil:
			s.Failed++
			s.FailedFiles = append(s.FailedFiles, r.Filename)
		case r.Changed:
			s.Changed++
		default:
			s.Unchanged++
		}
	}
	return s
}

// CleanDir cleans every .eml and .mbox file below src and writes the results
// under dst with the same relative paths
func (c *Cleaner) CleanDir(src, dst string, progress ProgressFunc) (*Summary, error) {
	sc := scanner.NewScanner(src)
	files, err := sc.Scan()
	if err != nil {
		return nil, fmt.Errorf("failed to scan for files: %w", err)
	}

	c.log.Info("Cleaning directory",
		zap.String("src", src),
		zap.String("dst", dst),
		zap.Int("files", len(files)),
		zap.Int("workers", c.concurrency),
		zap.String("mode", string(c.mode)))

	jobs := make([]job, len(files))
	for i, rel := range files {
		path := filepath.Join(sc.GetRootPath(), filepath.FromSlash(rel))
		jobs[i] = job{
			index: i,
			name:  rel,
			load: func() ([]byte, error) {
				return os.ReadFile(path)
			},
		}
	}

	write := func(res *FileResult) {
		if res.Err != nil {
			return
		}
		if err := writeOutput(dst, res.Filename, res.Output); err != nil {
			setError(res, err)
		}
	}

	summary := Summarize(c.run(jobs, progress, write))

	c.log.Info("Cleaning complete",
		zap.Int("changed", summary.Changed),
		zap.Int("unchanged", summary.Unchanged),
		zap.Int("failed", summary.Failed))

	return summary, nil
}

// WriteResults writes the output of every successful result under dst and
// returns how many files were written
func WriteResults(dst string, results []FileResult) (int, error) {
	written := 0
	for _, res := range results {
		if res.Err != nil {
			continue
		}
		if err := writeOutput(dst, res.Filename, res.Output); err != nil {
			return written, fmt.Errorf("%s: %w", res.Filename, err)
		}
		written++
	}
	return written, nil
}

func writeOutput(dst, name string, data []byte) error {
	path := filepath.Join(dst, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// run processes jobs with a worker pool. after, when set, runs in the worker
// right after a file is cleaned.
func (c *Cleaner) run(jobs []job, progress ProgressFunc, after func(*FileResult)) []FileResult {
	results := make([]FileResult, len(jobs))
	if len(jobs) == 0 {
		return results
	}

	// Create channels for work distribution
	jobChan := make(chan job, len(jobs))
	doneChan := make(chan int, len(jobs))

	// Start worker pool
	var wg sync.WaitGroup
	workers := min(c.concurrency, len(jobs))
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobChan {
				res := c.cleanJob(j)
				if after != nil {
					after(&res)
				}
				results[j.index] = res
				doneChan <- j.index
			}
		}()
	}

	// Send jobs to workers
	for _, j := range jobs {
		jobChan <- j
	}
	close(jobChan)

	// Wait for all workers to finish
	go func() {
		wg.Wait()
		close(doneChan)
	}()

	// Collect progress
	processed := 0
	for idx := range doneChan {
		processed++
		if progress != nil {
			progress(processed, len(jobs), jobs[idx].name)
		}
	}

	return results
}

// cleanJob loads and cleans one file
func (c *Cleaner) cleanJob(j job) FileResult {
	res := FileResult{Filename: j.name}

	data, err := j.load()
	if err != nil {
		setError(&res, fmt.Errorf("failed to read file: %w", err))
		c.log.Warn("Failed to read file", zap.String("file", j.name), zap.Error(err))
		return res
	}

	if scanner.KindOf(j.name) == scanner.KindMbox {
		res = c.cleanMbox(j.name, data)
	} else {
		res = c.cleanMessage(j.name, data)
	}

	if res.Err != nil {
		c.log.Warn("Failed to clean file", zap.String("file", j.name), zap.Error(res.Err))
	} else {
		c.log.Debug("Cleaned file",
			zap.String("file", j.name),
			zap.String("reason", res.Reason),
			zap.Bool("changed", res.Changed))
	}
	return res
}

func (c *Cleaner) cleanMessage(name string, data []byte) FileResult {
	out := cleaner.Process(data, c.mode)
	c.logProcessed(name, &out)

	return FileResult{
		Filename: name,
		Changed:  out.Changed(),
		Reason:   string(out.Outcome),
		Outcome:  out.Outcome,
		Output:   out.Output,
		Messages: 1,
		Preview:  preview(out.Output),
	}
}

// logProcessed records the per-message details a FileResult does not carry
func (c *Cleaner) logProcessed(name string, out *cleaner.Result) {
	if out.TreeFallbacks > 0 {
		c.log.Warn("HTML could not be parsed, only textual link rewrites applied",
			zap.String("file", name),
			zap.Int("parts", out.TreeFallbacks))
	}
	c.log.Debug("Processed message",
		zap.String("file", name),
		zap.String("outcome", string(out.Outcome)),
		zap.Bool("parsed", out.Parsed),
		zap.Int("html_parts", out.HTMLParts),
		zap.Int("substitutions", out.Substitutions),
		zap.String("recipient_header", out.RecipientHeader))
}

func preview(raw []byte) string {
	msg, err := parser.Parse(raw)
	if err != nil {
		return ""
	}
	return msg.TextPreview(previewRunes)
}

func setError(res *FileResult, err error) {
	res.Err = err
	res.Reason = "Error: " + err.Error()
	res.Changed = false
	res.Output = nil
}
