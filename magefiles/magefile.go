//go:build mage

// Package main contains Mage build targets for research-assistant developer tooling.
package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binDir     = "bin"
	binName    = "research-assistant"
	cmdPkg     = "./cmd/research-assistant"
	reportsDir = "reports"
	secretsDir = ".secrets"
)

// Init creates the reports and secrets directories the CLI expects.
func Init() error {
	for _, dir := range []string{reportsDir, secretsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		fmt.Println("  ", dir)
	}
	fmt.Println("Put API keys in .secrets/ (anthropic-api-key, openai-api-key, semantic-scholar-api-key, pubmed-api-key).")
	return nil
}

// Build compiles the CLI binary into bin/, stamping the version from VERSION
// or "dev".
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}
	version := os.Getenv("VERSION")
	if version == "" {
		version = "dev"
	}
	out := filepath.Join(binDir, binName)
	if err := sh.RunV("go", "build", "-ldflags", "-X main.version="+version, "-o", out, cmdPkg); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	fmt.Printf("Built %s\n", out)
	return nil
}

// Test runs the unit tests with the race detector.
func Test() error {
	return sh.RunV("go", "test", "-race", "-count=1", "./...")
}

// Lint runs go vet.
func Lint() error {
	return sh.RunV("go", "vet", "./...")
}

// Check runs lint and tests.
func Check() {
	mg.SerialDeps(Lint, Test)
}

// Research builds the CLI and runs the pipeline for the QUERY environment
// variable, saving the report under reports/.
func Research() error {
	mg.Deps(Build, Init)
	query := strings.TrimSpace(os.Getenv("QUERY"))
	if query == "" {
		return fmt.Errorf("set QUERY to the research question")
	}
	return sh.RunV(filepath.Join(binDir, binName), "research", "--out", reportsDir, query)
}

// Clean removes build output.
func Clean() error {
	return sh.Rm(binDir)
}

// Stats prints project metrics: Go production/test LOC and documentation word count.
func Stats() error {
	prodLines, testLines, err := countGoLines(".")
	if err != nil {
		return err
	}
	docWords, err := countDocWords(".")
	if err != nil {
		return err
	}

	fmt.Printf("Lines of code (Go, production): %d\n", prodLines)
	fmt.Printf("Lines of code (Go, tests):      %d\n", testLines)
	fmt.Printf("Words (documentation):           %d\n", docWords)
	return nil
}

// skipDir reports whether a directory is outside the project sources.
func skipDir(path string, d fs.DirEntry) bool {
	name := d.Name()
	return path != "." && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == binDir || name == reportsDir)
}

// countGoLines counts non-blank lines in production and test Go files.
func countGoLines(root string) (prod, test int, err error) {
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipDir(path, d) {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" {
			return nil
		}
		n, err := nonBlankLines(path)
		if err != nil {
			return err
		}
		if strings.HasSuffix(path, "_test.go") {
			test += n
		} else {
			prod += n
		}
		return nil
	})
	return prod, test, err
}

// countDocWords counts words in Markdown files.
func countDocWords(root string) (int, error) {
	total := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipDir(path, d) {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".md" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		total += len(bytes.Fields(data))
		return nil
	})
	return total, err
}

func nonBlankLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) != "" {
			n++
		}
	}
	return n, sc.Err()
}
