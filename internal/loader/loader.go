// Package loader turns the resource directory into normalized documents.
package loader

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"energyrag/internal/domain"
	"energyrag/internal/logger"
)

// extracted is the text and optional title pulled out of one file.
type extracted struct {
	text  string
	title string
	meta  map[string]string
}

type extractFunc func(path string) (extracted, error)

var extractors = map[string]extractFunc{
	".txt":  extractPlain,
	".md":   extractMarkdown,
	".html": extractHTML,
	".htm":  extractHTML,
	".pdf":  extractPDF,
}

// Supported reports whether files with the given extension are loaded.
func Supported(path string) bool {
	_, ok := extractors[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Load reads every supported file under dir. A file that cannot be read or
// yields no text is reported in the failures and does not stop the walk.
// The error is non-nil only when dir itself cannot be walked.
func Load(ctx context.Context, dir string) ([]domain.Document, []domain.DocumentFailure, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("resource dir: %w", err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("resource dir %s is not a directory", dir)
	}

	var (
		docs     []domain.Document
		failures []domain.DocumentFailure
	)
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)
		if walkErr != nil {
			if d != nil && d.IsDir() && path == dir {
				return walkErr
			}
			failures = append(failures, domain.DocumentFailure{SourcePath: rel, Error: walkErr.Error()})
			return nil
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !Supported(path) {
			logger.Debug("skipping unsupported file %s", rel)
			return nil
		}
		doc, err := LoadFile(path, rel)
		if err != nil {
			logger.Warn("failed to load %s: %v", rel, err)
			failures = append(failures, domain.DocumentFailure{SourcePath: rel, Error: err.Error()})
			return nil
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("loaded %d documents (%d failed) from %s", len(docs), len(failures), dir)
	return docs, failures, nil
}

// LoadFile extracts, normalizes and cleans one file. rel is the provenance
// path recorded on the document.
func LoadFile(path, rel string) (domain.Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	extract, ok := extractors[ext]
	if !ok {
		return domain.Document{}, fmt.Errorf("unsupported file type %q", ext)
	}
	ex, err := extract(path)
	if err != nil {
		return domain.Document{}, err
	}
	text := FilterNoise(Clean(ex.text))
	if strings.TrimSpace(text) == "" {
		return domain.Document{}, fmt.Errorf("no extractable text")
	}
	title := strings.TrimSpace(ex.title)
	if title == "" {
		title = TitleFromFilename(path)
	}
	meta := map[string]string{"format": strings.TrimPrefix(ext, ".")}
	for k, v := range ex.meta {
		meta[k] = v
	}
	return domain.Document{
		ID:         domain.DocumentID(rel),
		SourcePath: rel,
		Title:      title,
		RawText:    text,
		Metadata:   meta,
	}, nil
}

// TitleFromFilename turns "heat_pump-guide.pdf" into "heat pump guide".
func TitleFromFilename(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	return strings.Join(strings.Fields(base), " ")
}

func extractPlain(path string) (extracted, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return extracted{}, err
	}
	return extracted{text: DecodeText(data)}, nil
}

// extractMarkdown uses the first level-one heading as the title.
func extractMarkdown(path string) (extracted, error) {
	ex, err := extractPlain(path)
	if err != nil {
		return ex, err
	}
	for _, line := range strings.Split(ex.text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			ex.title = strings.TrimSpace(strings.TrimPrefix(line, "# "))
			break
		}
	}
	return ex, nil
}
