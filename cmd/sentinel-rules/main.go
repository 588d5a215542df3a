// Package main provides a CLI tool for checking detection rule configuration.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"fleet-sentinel/internal/detection"
	"fleet-sentinel/internal/report"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}

	switch args[0] {
	case "validate":
		return runValidateCmd(args[1:], stdout, stderr)
	case "show":
		return runShowCmd(args[1:], stdout, stderr)
	case "-version", "--version", "-v":
		fmt.Fprintf(stdout, "sentinel-rules %s\n", version)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown subcommand: %s\n", args[0])
		printUsage(stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "Usage: sentinel-rules <command> [flags] [args]\n\n")
	fmt.Fprintf(w, "Commands:\n")
	fmt.Fprintf(w, "  validate  Validate detection rule files or directories\n")
	fmt.Fprintf(w, "  show      Print the effective rule parameters of a file\n\n")
	fmt.Fprintf(w, "Flags:\n")
	fmt.Fprintf(w, "  -version  Show version and exit\n")
}

func runValidateCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	verbose := fs.Bool("verbose", false, "Show effective rule parameters")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	paths := fs.Args()
	if len(paths) == 0 {
		fmt.Fprintf(stderr, "Error: at least one path is required\n")
		fmt.Fprintf(stderr, "Usage: sentinel-rules validate [--verbose] <path> [<path>...]\n")
		return 1
	}

	return runValidate(paths, *verbose, stdout, stderr)
}

func runShowCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg := detection.DefaultConfig()
	if fs.NArg() > 0 {
		loaded, err := detection.LoadConfig(fs.Arg(0))
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		cfg = loaded
	}

	if err := report.Rules(stdout, cfg); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func runValidate(paths []string, verbose bool, stdout, stderr io.Writer) int {
	var totalFiles, validFiles, invalidFiles int

	check := func(path string) {
		totalFiles++
		if validateFile(path, verbose, stdout) {
			validFiles++
		} else {
			invalidFiles++
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %s: %v\n", path, err)
			invalidFiles++
			continue
		}

		if !info.IsDir() {
			check(path)
			continue
		}

		files, err := collectYAMLFiles(path)
		if err != nil {
			fmt.Fprintf(stderr, "Error reading directory %s: %v\n", path, err)
			invalidFiles++
			continue
		}
		for _, f := range files {
			check(f)
		}
	}

	fmt.Fprintf(stdout, "\nResults: %d files checked, %d valid, %d invalid\n", totalFiles, validFiles, invalidFiles)

	if invalidFiles > 0 {
		return 1
	}
	return 0
}

func validateFile(path string, verbose bool, w io.Writer) bool {
	cfg, err := detection.LoadConfig(path)
	if err != nil {
		// Joined validation errors span several lines.
		fmt.Fprintf(w, "  FAIL  %s: %s\n", path, strings.ReplaceAll(err.Error(), "\n", "; "))
		return false
	}

	fmt.Fprintf(w, "  OK    %s (%d of 5 rule(s) enabled)\n", path, enabledRules(cfg))

	if verbose {
		if err := report.Rules(w, cfg); err != nil {
			fmt.Fprintf(w, "        render error: %v\n", err)
		}
	}

	return true
}

func enabledRules(cfg detection.Config) int {
	n := 0
	for _, on := range []bool{
		cfg.FailedLogin.Enabled,
		cfg.CommandSpam.Enabled,
		cfg.AbnormalPower.Enabled,
		cfg.RapidTemperature.Enabled,
		cfg.UnauthorizedAccess.Enabled,
	} {
		if on {
			n++
		}
	}
	return n
}

func collectYAMLFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
