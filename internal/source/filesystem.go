// Package source provides document source connectors. The filesystem
// connector serves a mounted document share; ids are slash-separated paths
// relative to the configured root.
package source

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"

	"rag-knowledge-platform/internal/logger"
	"rag-knowledge-platform/models"
)

// 200MB safety cap for in-memory PDF extraction.
const maxFileSize = 200 << 20

var indexableExtensions = map[string]string{
	".txt": "text/plain",
	".md":  "text/markdown",
	".pdf": "application/pdf",
}

// FilesystemConnector lists and exports documents from a directory tree.
type FilesystemConnector struct {
	root string
}

func NewFilesystemConnector(root string) (*FilesystemConnector, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve source root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("source root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source root %s is not a directory", abs)
	}
	return &FilesystemConnector{root: abs}, nil
}

// List walks the tree under folder (relative to the root; empty means the
// whole root) and returns every indexable file.
func (c *FilesystemConnector) List(ctx context.Context, folder string) ([]models.SourceFile, error) {
	base, err := c.resolve(folder)
	if err != nil {
		return nil, err
	}

	var files []models.SourceFile
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && p != base {
				return filepath.SkipDir
			}
			return nil
		}
		mimeType, ok := indexableExtensions[strings.ToLower(filepath.Ext(d.Name()))]
		if !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(c.root, p)
		if err != nil {
			return err
		}
		files = append(files, models.SourceFile{
			ID:           filepath.ToSlash(rel),
			Name:         d.Name(),
			MimeType:     mimeType,
			ModifiedTime: info.ModTime().UTC(),
			Link:         "file://" + p,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", folder, err)
	}
	return files, nil
}

// Export reads a document and returns its plain-text content. PDFs are
// extracted page by page; anything else is returned as-is.
func (c *FilesystemConnector) Export(ctx context.Context, id string) ([]byte, error) {
	p, err := c.resolve(id)
	if err != nil {
		return nil, err
	}

	stat, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", id, err)
	}
	if stat.Size() > maxFileSize {
		return nil, fmt.Errorf("document %s too large for in-memory extraction", id)
	}

	content, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", id, err)
	}

	if strings.EqualFold(filepath.Ext(p), ".pdf") {
		text, pages, err := extractPDFText(content)
		if err != nil {
			return nil, fmt.Errorf("extract pdf %s: %w", id, err)
		}
		if !textQualityOK(text) {
			return nil, fmt.Errorf("extract pdf %s: unusable text from %d pages", id, pages)
		}
		return []byte(text), nil
	}
	return content, nil
}

// Delete removes the document file.
func (c *FilesystemConnector) Delete(ctx context.Context, id string) error {
	p, err := c.resolve(id)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	logger.Info("source document deleted", "document_id", id)
	return nil
}

// Rename moves the document within its directory, keeping its extension.
func (c *FilesystemConnector) Rename(ctx context.Context, id, name string) error {
	p, err := c.resolve(id)
	if err != nil {
		return err
	}
	if name == "" || name != filepath.Base(name) {
		return fmt.Errorf("rename %s: invalid name %q", id, name)
	}
	if filepath.Ext(name) == "" {
		name += filepath.Ext(p)
	}
	if err := os.Rename(p, filepath.Join(filepath.Dir(p), name)); err != nil {
		return fmt.Errorf("rename %s: %w", id, err)
	}
	return nil
}

// resolve maps a document id onto an absolute path and rejects ids that
// escape the root.
func (c *FilesystemConnector) resolve(id string) (string, error) {
	clean := path.Clean("/" + filepath.ToSlash(id))
	p := filepath.Join(c.root, filepath.FromSlash(clean))
	if p != c.root && !strings.HasPrefix(p, c.root+string(filepath.Separator)) {
		return "", fmt.Errorf("document id %q escapes source root", id)
	}
	return p, nil
}

func extractPDFText(content []byte) (string, int, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", 0, err
	}

	var b strings.Builder
	pages := reader.NumPage()
	for i := 1; i <= pages; i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		fonts := make(map[string]*pdf.Font)
		t, err := p.GetPlainText(fonts)
		if err != nil {
			continue
		}
		b.WriteString(t)
		b.WriteString("\n\n")
	}
	return b.String(), pages, nil
}

// textQualityOK rejects extractions that are mostly control characters or
// empty, which some scanned PDFs produce.
func textQualityOK(text string) bool {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < 20 {
		return false
	}
	printable := 0
	for _, r := range trimmed {
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			printable++
		}
	}
	return float64(printable)/float64(len([]rune(trimmed))) >= 0.9
}
