// Package docs renders the operator guide and API reference from AsciiDoc.
package docs

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/bytesparadise/libasciidoc"
	"github.com/bytesparadise/libasciidoc/pkg/configuration"
)

//go:embed content/*.adoc
var content embed.FS

// Service renders .adoc files from a filesystem and caches the HTML.
type Service struct {
	fsys  fs.FS
	cache map[string]string // filename -> html content
	mu    sync.RWMutex
}

// NewService serves documents from fsys.
func NewService(fsys fs.FS) *Service {
	return &Service{
		fsys:  fsys,
		cache: make(map[string]string),
	}
}

// Default serves the documents built into the binary.
func Default() *Service {
	sub, err := fs.Sub(content, "content")
	if err != nil {
		panic(err)
	}
	return NewService(sub)
}

// GetDoc returns the rendered HTML body of filename.
func (s *Service) GetDoc(ctx context.Context, filename string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := path.Clean(filename)
	if !strings.HasSuffix(name, ".adoc") || !fs.ValidPath(name) {
		return "", fmt.Errorf("invalid doc name %q: %w", filename, fs.ErrNotExist)
	}

	s.mu.RLock()
	html, ok := s.cache[name]
	s.mu.RUnlock()
	if ok {
		return html, nil
	}

	data, err := fs.ReadFile(s.fsys, name)
	if err != nil {
		return "", fmt.Errorf("failed to read doc file: %w", err)
	}

	output := bytes.NewBuffer(nil)
	config := configuration.NewConfiguration(
		configuration.WithHeaderFooter(false),
		configuration.WithAttribute("toc", "left"),
	)
	if _, err := libasciidoc.Convert(bytes.NewReader(data), output, config); err != nil {
		return "", fmt.Errorf("failed to convert asciidoc: %w", err)
	}

	html = output.String()
	s.mu.Lock()
	s.cache[name] = html
	s.mu.Unlock()
	return html, nil
}

// ListDocs returns the available document names in sorted order.
func (s *Service) ListDocs() ([]string, error) {
	entries, err := fs.ReadDir(s.fsys, ".")
	if err != nil {
		return nil, err
	}

	docs := []string{}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".adoc") {
			docs = append(docs, entry.Name())
		}
	}
	sort.Strings(docs)
	return docs, nil
}
