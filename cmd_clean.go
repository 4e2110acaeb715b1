package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/subh7987/hyper-link-remover/internal/batch"
	"github.com/subh7987/hyper-link-remover/internal/cleaner"
	"github.com/subh7987/hyper-link-remover/internal/config"
	"github.com/subh7987/hyper-link-remover/internal/logger"
	"github.com/subh7987/hyper-link-remover/internal/parser"
	"github.com/subh7987/hyper-link-remover/internal/report"
	"github.com/subh7987/hyper-link-remover/internal/scanner"
)

// setup loads the configuration and builds the logger shared by all commands
func setup(configPath string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.New(cfg.Log.Env, cfg.Log.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, log, nil
}

func cmdClean(args []string) error {
	fs := flag.NewFlagSet("clean", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file")
	modeName := fs.String("mode", "", "full (mask emails and remove links) or links (remove links only)")
	outDir := fs.String("out", "", "write cleaned files to this folder")
	reportPath := fs.String("report", "", "write the XLSX processing report to this file")
	zipPath := fs.String("zip", "", "write the cleaned files as a ZIP archive to this file")
	workers := fs.Int("workers", 0, "concurrent workers (default: config, then one per CPU)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, log, err := setup(*configPath)
	if err != nil {
		return err
	}
	defer log.Sync()

	mode := cfg.CleanMode()
	if *modeName != "" {
		if mode, err = cleaner.ParseMode(*modeName); err != nil {
			return err
		}
	}

	paths := fs.Args()
	if len(paths) == 0 {
		paths = []string{cfg.InputPath}
	}
	if *outDir == "" && *reportPath == "" && *zipPath == "" {
		*outDir = cfg.OutputPath
	}

	inputs, err := collectInputs(paths)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no .eml or .mbox files found in %v", paths)
	}

	c := batch.New(mode, log)
	switch {
	case *workers > 0:
		c.WithConcurrency(*workers)
	case cfg.Workers > 0:
		c.WithConcurrency(cfg.Workers)
	}
	results := c.CleanAll(inputs)

	if *outDir != "" {
		written, err := batch.WriteResults(*outDir, results)
		if err != nil {
			return err
		}
		log.Info("Cleaned files written", zap.String("dir", *outDir), zap.Int("files", written))
	}
	if *zipPath != "" {
		data, err := report.Archive(results)
		if err != nil {
			return err
		}
		if err := writeFile(*zipPath, data); err != nil {
			return err
		}
	}
	if *reportPath != "" {
		data, err := report.Workbook(results)
		if err != nil {
			return err
		}
		if err := writeFile(*reportPath, data); err != nil {
			return err
		}
	}

	printResults(os.Stdout, results)
	return nil
}

func cmdPreview(args []string) error {
	fs := flag.NewFlagSet("preview", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file")
	modeName := fs.String("mode", "", "full or links")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("preview needs exactly one file")
	}

	cfg, log, err := setup(*configPath)
	if err != nil {
		return err
	}
	defer log.Sync()

	mode := cfg.CleanMode()
	if *modeName != "" {
		if mode, err = cleaner.ParseMode(*modeName); err != nil {
			return err
		}
	}

	path := fs.Arg(0)
	if scanner.KindOf(path) == scanner.KindEML {
		if msg, err := parser.ParseEMLFile(path); err == nil {
			fmt.Fprintf(os.Stderr, "Subject: %s\n", msg.Subject())
		}
	}

	data, err := os.ReadFile(path)
	results := batch.New(mode, log).CleanAll([]batch.Input{{Name: filepath.Base(path), Data: data, Err: err}})
	res := results[0]
	if res.Err != nil {
		return res.Err
	}

	fmt.Fprintf(os.Stderr, "%s: %s\n", res.Filename, res.Reason)
	_, err = os.Stdout.Write(res.Output)
	return err
}

// collectInputs expands folders with the scanner; files named explicitly are
// taken as they are
func collectInputs(paths []string) ([]batch.Input, error) {
	var inputs []batch.Input
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to access %s: %w", p, err)
		}

		if !info.IsDir() {
			data, err := os.ReadFile(p)
			inputs = append(inputs, batch.Input{Name: filepath.Base(p), Data: data, Err: err})
			continue
		}

		files, err := scanner.NewScanner(p).Scan()
		if err != nil {
			return nil, err
		}
		for _, rel := range files {
			data, err := os.ReadFile(filepath.Join(p, filepath.FromSlash(rel)))
			inputs = append(inputs, batch.Input{Name: rel, Data: data, Err: err})
		}
	}
	return inputs, nil
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// printResults writes the report table and a summary line
func printResults(w io.Writer, results []batch.FileResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Filename\tChanged\tReason")
	for _, res := range results {
		changed := "No"
		if res.Changed {
			changed = "Yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", res.Filename, changed, res.Reason)
	}
	tw.Flush()

	summary := batch.Summarize(results)
	fmt.Fprintf(w, "\n%d files: %d changed, %d unchanged, %d failed\n",
		summary.TotalFound, summary.Changed, summary.Unchanged, summary.Failed)
}
