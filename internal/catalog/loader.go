// Package catalog loads document topic catalogs from YAML. The catalog is the
// list of topics a document covers, used for exam-readiness coverage, and the
// source excerpts question generation works from.
package catalog

import (
	"cmp"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/p-n-ai/pai-adaptive/internal/learning"
)

const sourceSuffix = ".source.md"

// maxContextRunes bounds the generation context taken from a full source text.
const maxContextRunes = 6000

// Loader loads and caches document catalogs from the filesystem.
type Loader struct {
	rootDir   string
	documents map[string]Document
	mu        sync.RWMutex
}

// NewLoader creates a loader and loads every catalog under rootDir. An empty
// rootDir yields an empty catalog that documents can be registered into.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{
		rootDir:   rootDir,
		documents: make(map[string]Document),
	}
	if rootDir == "" {
		return l, nil
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	slog.Info("catalog loaded", "documents", len(l.documents))
	return l, nil
}

// Register adds or replaces a document.
func (l *Loader) Register(doc Document) {
	doc = normalize(doc)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.documents[doc.ID] = doc
}

// Document returns a document by ID.
func (l *Loader) Document(id string) (Document, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	d, ok := l.documents[id]
	return d, ok
}

// AllDocuments returns all loaded documents ordered by ID.
func (l *Loader) AllDocuments() []Document {
	l.mu.RLock()
	defer l.mu.RUnlock()
	docs := make([]Document, 0, len(l.documents))
	for _, d := range l.documents {
		docs = append(docs, d)
	}
	slices.SortFunc(docs, func(a, b Document) int { return cmp.Compare(a.ID, b.ID) })
	return docs
}

// Topics returns the topic names of a document in catalog order. Unknown
// documents have no topics.
func (l *Loader) Topics(documentID string) []string {
	d, ok := l.Document(documentID)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(d.Topics))
	for _, t := range d.Topics {
		out = append(out, t.Name)
	}
	return out
}

// Context returns the text to generate questions on topic from: the topic's
// excerpt when it has one, otherwise the head of the document source.
func (l *Loader) Context(documentID, topic string) string {
	d, ok := l.Document(documentID)
	if !ok {
		return ""
	}
	key := learning.TopicKey(topic)
	for _, t := range d.Topics {
		if learning.TopicKey(t.Name) == key && strings.TrimSpace(t.Excerpt) != "" {
			return strings.TrimSpace(t.Excerpt)
		}
	}
	return truncateRunes(strings.TrimSpace(d.Source), maxContextRunes)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func normalize(doc Document) Document {
	topics := make([]Topic, 0, len(doc.Topics))
	seen := map[string]bool{}
	for _, t := range doc.Topics {
		if strings.TrimSpace(t.Name) == "" {
			continue
		}
		t.Name = learning.TopicName(t.Name)
		key := learning.TopicKey(t.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		topics = append(topics, t)
	}
	doc.Topics = topics
	return doc
}

func (l *Loader) loadAll() error {
	return filepath.WalkDir(l.rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
			return l.loadDocument(path)
		}
		return nil
	})
}

func (l *Loader) loadDocument(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		slog.Warn("skipping invalid catalog YAML", "path", path, "error", err)
		return nil
	}

	if doc.ID == "" {
		return nil // Not a catalog file
	}

	base := strings.TrimSuffix(path, filepath.Ext(path))
	if source, err := os.ReadFile(base + sourceSuffix); err == nil {
		doc.Source = string(source)
	}

	l.Register(doc)
	return nil
}
