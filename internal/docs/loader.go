// Package docs turns heterogeneous source files into plain text records
// ready for chunking. Extraction failures are per-document: the loader
// reports them and the caller moves on to the next file.
package docs

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// DocumentText is the extracted plain text of one source file.
type DocumentText struct {
	SourcePath string
	Format     string
	Text       string
}

// ExtractionError marks a single document that could not be parsed.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extracting %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// formats maps supported file extensions to their format names.
var formats = map[string]string{
	".pdf":      "pdf",
	".docx":     "docx",
	".txt":      "txt",
	".md":       "md",
	".markdown": "md",
	".html":     "html",
	".htm":      "html",
}

// FormatOf returns the document format for a path and whether the extension
// is supported.
func FormatOf(path string) (string, bool) {
	f, ok := formats[strings.ToLower(filepath.Ext(path))]
	return f, ok
}

// IsSupported reports whether the file extension is one the loader can
// extract. The watcher uses it to ignore unrelated filesystem events.
func IsSupported(path string) bool {
	_, ok := FormatOf(path)
	return ok
}

// Loader discovers and extracts source documents.
type Loader struct{}

func NewLoader() *Loader {
	return &Loader{}
}

// Discover lists the supported files in dir, sorted by name. Files whose
// names contain "resume" or "cv" are preferred: when any exist, only those
// are returned. Discovery is not recursive.
func (l *Loader) Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}

	var all, preferred []string
	for _, entry := range entries {
		if entry.IsDir() || !IsSupported(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		all = append(all, path)
		name := strings.ToLower(entry.Name())
		if strings.Contains(name, "resume") || strings.Contains(name, "cv") {
			preferred = append(preferred, path)
		}
	}

	files := all
	if len(preferred) > 0 {
		files = preferred
	}
	sort.Strings(files)
	return files, nil
}

// Extract reads one file and returns its plain text. The text is
// whitespace-normalized so chunk boundaries are stable across platforms.
// Failures are wrapped in *ExtractionError.
func (l *Loader) Extract(path string) (DocumentText, error) {
	format, ok := FormatOf(path)
	if !ok {
		return DocumentText{}, &ExtractionError{Path: path, Err: fmt.Errorf("unsupported file type %q", filepath.Ext(path))}
	}

	var text string
	var err error
	switch format {
	case "pdf":
		text, err = extractPDF(path)
	case "docx":
		text, err = extractDOCX(path)
	case "html":
		text, err = extractHTML(path)
	default:
		text, err = readPlain(path)
	}
	if err != nil {
		return DocumentText{}, &ExtractionError{Path: path, Err: err}
	}

	return DocumentText{
		SourcePath: path,
		Format:     format,
		Text:       normalizeText(text),
	}, nil
}

func readPlain(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

var (
	horizontalWS = regexp.MustCompile(`[ \t]+`)
	blankRuns    = regexp.MustCompile(`\n{3,}`)
)

// normalizeText converts CRLF to LF, collapses horizontal whitespace runs,
// and caps consecutive blank lines at one.
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = horizontalWS.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " ")
	}
	s = strings.Join(lines, "\n")
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
