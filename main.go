// Command hyper-link-remover masks the recipient address and disables
// hyperlinks in .eml files, from the command line or a local web UI.
package main

import (
	"fmt"
	"os"
	"strings"
)

// usage prints command-line help to stderr
func usage() {
	fmt.Fprint(os.Stderr, `hyper-link-remover
Mask recipient addresses and disable hyperlinks in .eml files

Usage:
  hyper-link-remover clean   [options] [path...]  Clean files or folders (default: configured input folder)
  hyper-link-remover preview [options] <file>     Print one cleaned message to stdout
  hyper-link-remover serve   [options]            Start the web interface
  hyper-link-remover help                         Show this help message

Run "hyper-link-remover <command> -h" for the options of a command.

Examples:
  hyper-link-remover clean -out ./cleaned -report report.xlsx ./emails
  hyper-link-remover clean -mode links -zip cleaned.zip a.eml b.eml
  hyper-link-remover preview -mode links message.eml
  hyper-link-remover serve -config config.yaml
`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := strings.ToLower(os.Args[1])
	args := os.Args[2:]

	var err error
	switch cmd {
	case "help", "-h", "--help":
		usage()
		return
	case "clean":
		err = cmdClean(args)
	case "preview":
		err = cmdPreview(args)
	case "serve", "server", "web":
		err = cmdServe(args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
