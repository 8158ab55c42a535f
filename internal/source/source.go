// Package source reads document text from readers and files. Plain text is
// read as-is; PDF and HTML files are reduced to their plain text.
package source

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
)

const maxLineSize = 1 << 20

// File is one document read from disk.
type File struct {
	Path string
	Text string
}

// DefaultExtensions are the file types List picks up when none are given.
var DefaultExtensions = []string{".txt", ".text", ".md", ".pdf", ".html", ".htm"}

// Lines yields each line of r without its terminator. A read error is
// yielded once, after which iteration stops.
func Lines(r io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			if !yield(scanner.Text(), nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield("", err)
		}
	}
}

// ReadFile returns the text of the file at path, extracting it first when
// the file is a PDF or an HTML page.
func ReadFile(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return readPDF(path)
	case ".html", ".htm":
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()
		text, err := HTMLText(f)
		if err != nil {
			return "", fmt.Errorf("parsing html %s: %w", path, err)
		}
		return text, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

// HTMLText returns the visible text of an HTML document, one text node per
// line. Script, style and noscript content is dropped.
func HTMLText(r io.Reader) (string, error) {
	z := html.NewTokenizer(r)
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return "", err
			}
			return b.String(), nil
		case html.StartTagToken:
			if hidden(z) {
				skip++
			}
		case html.EndTagToken:
			if hidden(z) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			if text := strings.TrimSpace(string(z.Text())); text != "" {
				b.WriteString(text)
				b.WriteByte('\n')
			}
		}
	}
}

func hidden(z *html.Tokenizer) bool {
	name, _ := z.TagName()
	switch string(name) {
	case "script", "style", "noscript":
		return true
	}
	return false
}

func readPDF(path string) (text string, err error) {
	defer func() {
		// The PDF reader panics on some malformed inputs.
		if r := recover(); r != nil {
			err = fmt.Errorf("parsing pdf %s: %v", path, r)
		}
	}()
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf %s: %w", path, err)
	}
	defer f.Close()
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting text from %s: %w", path, err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("reading text of %s: %w", path, err)
	}
	return buf.String(), nil
}

// List returns the regular files under root whose extension is one of exts
// (case-insensitive), sorted by path. root may also name a single file.
func List(root string, exts ...string) ([]string, error) {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	want := make(map[string]bool, len(exts))
	for _, e := range exts {
		want[strings.ToLower(e)] = true
	}
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && want[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", root, err)
	}
	slices.Sort(files)
	return files, nil
}

// ReadAll reads paths with at most workers files open at once. Results keep
// the order of paths. The first failure cancels the remaining reads.
func ReadAll(ctx context.Context, paths []string, workers int) ([]File, error) {
	files := make([]File, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			text, err := ReadFile(path)
			if err != nil {
				return err
			}
			files[i] = File{Path: path, Text: text}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}
