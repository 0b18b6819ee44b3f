// Package report writes the JSON, CSV and text files produced by the
// commands. All output goes through an afero filesystem rooted at one
// directory, so tests run against memory.
package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/errors"
)

// Name layouts shared by every report
const (
	TimestampLayout = "20060102_150405"
	DateLayout      = "20060102"
	DayLayout       = "2006-01-02"
)

const (
	dirPermissions  = 0o750
	filePermissions = 0o644
)

// Timestamp formats t for use in a file name
func Timestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// Writer creates report files below a directory
type Writer struct {
	fs  afero.Fs
	dir string
}

// NewWriter returns a writer for dir on fs
func NewWriter(fs afero.Fs, dir string) *Writer {
	return &Writer{fs: fs, dir: dir}
}

// OS returns a writer for dir on the local filesystem
func OS(dir string) *Writer {
	return NewWriter(afero.NewOsFs(), dir)
}

// Dir is the directory the writer writes to
func (w *Writer) Dir() string { return w.dir }

// Fs is the filesystem the writer writes to
func (w *Writer) Fs() afero.Fs { return w.fs }

// Path joins name onto the writer directory
func (w *Writer) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// Sub returns a writer for a subdirectory
func (w *Writer) Sub(name string) *Writer {
	return &Writer{fs: w.fs, dir: w.Path(name)}
}

func (w *Writer) ensureDir() error {
	if err := w.fs.MkdirAll(w.dir, dirPermissions); err != nil {
		return fileError(err, "create directory", w.dir)
	}
	return nil
}

func fileError(err error, op, path string) error {
	return errors.Newf("failed to %s: %w", op, err).
		Category(errors.CategoryFileIO).
		Component("report").
		Context("path", path).
		Build()
}

// WriteFile writes data to name through a temporary file
func (w *Writer) WriteFile(name string, data []byte) (string, error) {
	if err := w.ensureDir(); err != nil {
		return "", err
	}
	path := w.Path(name)
	tmp := path + ".tmp"
	if err := afero.WriteFile(w.fs, tmp, data, filePermissions); err != nil {
		return "", fileError(err, "write report", path)
	}
	if err := w.fs.Rename(tmp, path); err != nil {
		_ = w.fs.Remove(tmp)
		return "", fileError(err, "replace report", path)
	}
	return path, nil
}

// EncodeJSON renders v as indented JSON without HTML escaping
func EncodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, errors.Newf("failed to encode report: %w", err).
			Category(errors.CategoryProcessing).
			Component("report").
			Build()
	}
	return buf.Bytes(), nil
}

// WriteJSON writes v as indented JSON
func (w *Writer) WriteJSON(name string, v any) (string, error) {
	data, err := EncodeJSON(v)
	if err != nil {
		return "", err
	}
	return w.WriteFile(name, data)
}

// ReadJSON decodes name into v. A missing file is reported as not-found.
func (w *Writer) ReadJSON(name string, v any) error {
	path := w.Path(name)
	data, err := afero.ReadFile(w.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Newf("report %s does not exist", name).
				Category(errors.CategoryNotFound).
				Component("report").
				Context("path", path).
				Build()
		}
		return fileError(err, "read report", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Newf("failed to parse %s: %w", name, err).
			Category(errors.CategoryFileParsing).
			Component("report").
			Context("path", path).
			Build()
	}
	return nil
}

// WriteLines writes one line per entry
func (w *Writer) WriteLines(name string, lines []string) (string, error) {
	var buf bytes.Buffer
	for _, l := range lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	return w.WriteFile(name, buf.Bytes())
}

// ReadLines returns the non-empty trimmed lines of a file. path may be
// absolute or relative to the working directory.
func ReadLines(fs afero.Fs, path string) ([]string, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fileError(err, "read file", path)
	}
	var out []string
	for _, l := range strings.Split(string(data), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out, nil
}

// CSVOptions controls CSV output
type CSVOptions struct {
	// BOM prefixes the file with a UTF-8 byte order mark so spreadsheet
	// applications detect the encoding
	BOM bool
}

func encodeCSV(out io.Writer, header []string, rows [][]string, opts CSVOptions) error {
	if opts.BOM {
		tw := transform.NewWriter(out, unicode.UTF8BOM.NewEncoder())
		defer func() { _ = tw.Close() }()
		out = tw
	}
	cw := csv.NewWriter(out)
	if header != nil {
		if err := cw.Write(header); err != nil {
			return err
		}
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

// WriteCSV writes a CSV file with a header row
func (w *Writer) WriteCSV(name string, header []string, rows [][]string, opts CSVOptions) (string, error) {
	var buf bytes.Buffer
	if err := encodeCSV(&buf, header, rows, opts); err != nil {
		return "", fileError(err, "encode csv", w.Path(name))
	}
	return w.WriteFile(name, buf.Bytes())
}

// AppendCSV appends rows to name, writing the header only when the file is new
func (w *Writer) AppendCSV(name string, header []string, rows [][]string) (string, error) {
	if err := w.ensureDir(); err != nil {
		return "", err
	}
	path := w.Path(name)
	exists, err := afero.Exists(w.fs, path)
	if err != nil {
		return "", fileError(err, "stat report", path)
	}

	f, err := w.fs.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, filePermissions)
	if err != nil {
		return "", fileError(err, "open report", path)
	}
	if exists {
		header = nil
	}
	if err := encodeCSV(f, header, rows, CSVOptions{}); err != nil {
		_ = f.Close()
		return "", fileError(err, "append csv", path)
	}
	if err := f.Close(); err != nil {
		return "", fileError(err, "close report", path)
	}
	return path, nil
}

// Latest returns the lexically greatest file in the directory matching the
// glob pattern. Timestamped names sort chronologically.
func (w *Writer) Latest(pattern string) (string, error) {
	matches, err := afero.Glob(w.fs, w.Path(pattern))
	if err != nil {
		return "", fileError(err, "match files", w.Path(pattern))
	}
	if len(matches) == 0 {
		return "", errors.Newf("no file matches %s", w.Path(pattern)).
			Category(errors.CategoryNotFound).
			Component("report").
			Build()
	}
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}
