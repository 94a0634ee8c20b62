package filesource

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/couchcryptid/cap-alerts-etl/internal/domain"
)

// extensions are the file suffixes scanned inside directories.
var extensions = []string{".xml", ".cap"}

// Source yields CAP files found under a set of paths in descending file name
// order. That order is newest first only among files sharing a bulletin
// prefix; files from different offices or headers interleave by name.
// It implements pipeline.BatchExtractor and returns io.EOF once drained.
type Source struct {
	mu     sync.Mutex
	paths  []string
	next   int
	logger *slog.Logger
}

// New lists every CAP file under paths. Files are taken as given; directories
// are walked recursively for *.xml and *.cap. The result is sorted by base
// file name in descending order, so later issues come first only within one
// bulletin prefix (T_<header>_C_<office>_). Modification times are ignored.
func New(paths []string, logger *slog.Logger) (*Source, error) {
	var files []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, dup := seen[p]; dup {
			return
		}
		seen[p] = struct{}{}
		files = append(files, p)
	}

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", root, err)
		}
		if !info.IsDir() {
			add(root)
			continue
		}
		err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !hasCAPExtension(p) {
				return nil
			}
			add(p)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
	}

	sort.SliceStable(files, func(i, j int) bool {
		bi, bj := filepath.Base(files[i]), filepath.Base(files[j])
		if bi != bj {
			return bi > bj
		}
		return files[i] > files[j]
	})

	logger.Info("cap files listed", "roots", len(paths), "files", len(files))
	return &Source{paths: files, logger: logger}, nil
}

// Len returns the number of listed files.
func (s *Source) Len() int { return len(s.paths) }

// ExtractBatch returns the next batchSize files, or io.EOF when none remain.
func (s *Source) ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next >= len(s.paths) {
		return nil, io.EOF
	}
	end := min(s.next+batchSize, len(s.paths))
	batch := make([]domain.RawDocument, 0, end-s.next)
	for _, p := range s.paths[s.next:end] {
		batch = append(batch, domain.RawDocument{Path: p})
	}
	s.next = end
	return batch, nil
}

func hasCAPExtension(p string) bool {
	ext := strings.ToLower(filepath.Ext(p))
	for _, e := range extensions {
		if ext == e {
			return true
		}
	}
	return false
}
