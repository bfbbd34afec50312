package corpus

import (
	"encoding/csv"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// sourceDoc is one loadable document before chunking. Tabular sources
// expand to one sourceDoc per row, with the row's path carrying a
// "::row_N" suffix and the original fields retained for display.
type sourceDoc struct {
	// path identifies the source (file path, with "::row_N" for rows).
	path string

	// text is the raw text to clean and chunk. For rows this is the
	// priority-field embedding text, not the full serialized record.
	text string

	// fields holds the full original record for tabular sources.
	fields map[string]string

	// headers preserves the original column order for tabular sources.
	headers []string
}

// loadDocuments expands files and directories into loadable documents.
// Directories are scanned recursively for accepted extensions; files
// with unsupported extensions are skipped silently when discovered in a
// directory and with a warning when named explicitly. A document that
// fails to read degrades to a skip — one bad file never aborts a build.
func loadDocuments(paths []string, log *slog.Logger) ([]sourceDoc, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("corpus: stat %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				log.Warn("corpus: skipping unreadable entry",
					slog.String("path", path),
					slog.Any("error", err),
				)
				return nil
			}
			if !d.IsDir() && acceptedExt(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("corpus: walk %s: %w", p, err)
		}
	}

	var docs []sourceDoc
	for _, fp := range files {
		switch strings.ToLower(filepath.Ext(fp)) {
		case ".txt", ".md":
			text, err := readTextFile(fp)
			if err != nil {
				log.Warn("corpus: skipping unreadable file", slog.String("path", fp), slog.Any("error", err))
				continue
			}
			docs = append(docs, sourceDoc{path: fp, text: text})

		case ".pdf":
			text, err := readPDFFile(fp)
			if err != nil {
				log.Warn("corpus: skipping unreadable pdf", slog.String("path", fp), slog.Any("error", err))
				continue
			}
			docs = append(docs, sourceDoc{path: fp, text: text})

		case ".csv":
			rows, err := readCSVRows(fp)
			if err != nil {
				log.Warn("corpus: skipping unreadable csv", slog.String("path", fp), slog.Any("error", err))
				continue
			}
			docs = append(docs, rows...)

		default:
			log.Warn("corpus: unsupported extension, skipping", slog.String("path", fp))
		}
	}
	return docs, nil
}

// acceptedExt reports whether the file extension is indexable.
func acceptedExt(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".pdf", ".csv":
		return true
	}
	return false
}

// readTextFile loads a plain-text or markdown file as UTF-8.
func readTextFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("corpus: read %s: %w", path, err)
	}
	return string(data), nil
}

// readPDFFile extracts the text of every page. A page that fails to
// parse contributes an empty string rather than aborting the document.
func readPDFFile(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("corpus: open pdf %s: %w", path, err)
	}
	defer f.Close()

	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		pages = append(pages, extractPageText(r, i))
	}
	return strings.Join(pages, "\n"), nil
}

// extractPageText pulls the plain text of one page, recovering from
// the parser's panics on malformed content streams.
func extractPageText(r *pdf.Reader, n int) (text string) {
	defer func() {
		if recover() != nil {
			text = ""
		}
	}()

	page := r.Page(n)
	if page.V.IsNull() {
		return ""
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return text
}

// readCSVRows treats each CSV row as one synthetic document keyed by
// the header row. Malformed rows are skipped individually.
func readCSVRows(path string) ([]sourceDoc, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: open csv %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // tolerate ragged rows; they are skipped below

	headers, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("corpus: read csv header %s: %w", path, err)
	}
	for i := range headers {
		headers[i] = strings.TrimSpace(headers[i])
	}

	var docs []sourceDoc
	row := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			row++
			continue
		}
		if len(record) != len(headers) {
			row++
			continue
		}

		fields := make(map[string]string, len(headers))
		for i, h := range headers {
			fields[h] = strings.TrimSpace(record[i])
		}
		rowPath := fmt.Sprintf("%s::row_%d", path, row)
		docs = append(docs, sourceDoc{
			path:    rowPath,
			text:    embeddingTextForRow(fields, headers, rowPath),
			fields:  fields,
			headers: headers,
		})
		row++
	}
	return docs, nil
}
