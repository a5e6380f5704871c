package adapters

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/oho/pdfbench/internal/bench"
)

// DefaultArtifactOrder is the search priority when a backend sets none.
var DefaultArtifactOrder = []string{".md", ".json"}

func artifactKind(ext string) bench.ArtifactKind {
	switch ext {
	case ".md", ".markdown":
		return bench.ArtifactMarkdown
	case ".json", ".jsonl":
		return bench.ArtifactJSON
	default:
		return bench.ArtifactOther
	}
}

type artifactSet struct {
	Kind  bench.ArtifactKind
	Files []string // relative to the output dir, sorted
	Size  int64
	// Extensions lists every extension seen when nothing matched the order.
	Extensions []string
}

// collectArtifacts walks dir recursively and returns the first non-empty
// category in order. When files exist but none match, Kind is ArtifactOther
// and Extensions names what was found.
func collectArtifacts(dir string, order []string) (artifactSet, error) {
	if len(order) == 0 {
		order = DefaultArtifactOrder
	}

	type entry struct {
		rel  string
		size int64
	}
	byExt := map[string][]entry{}
	var all []entry

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == dir {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, path)
		e := entry{rel: rel, size: info.Size()}
		ext := strings.ToLower(filepath.Ext(path))
		byExt[ext] = append(byExt[ext], e)
		all = append(all, e)
		return nil
	})
	if err != nil {
		return artifactSet{}, fmt.Errorf("scan output %s: %w", dir, err)
	}

	for _, ext := range order {
		ext = strings.ToLower(ext)
		entries := byExt[ext]
		if len(entries) == 0 {
			continue
		}
		set := artifactSet{Kind: artifactKind(ext)}
		for _, e := range entries {
			set.Files = append(set.Files, e.rel)
			set.Size += e.size
		}
		sort.Strings(set.Files)
		return set, nil
	}

	if len(all) == 0 {
		return artifactSet{Kind: bench.ArtifactNone}, nil
	}

	set := artifactSet{Kind: bench.ArtifactOther}
	for _, e := range all {
		set.Files = append(set.Files, e.rel)
		set.Size += e.size
	}
	sort.Strings(set.Files)
	for ext := range byExt {
		if ext == "" {
			ext = "(none)"
		}
		set.Extensions = append(set.Extensions, ext)
	}
	sort.Strings(set.Extensions)
	return set, nil
}

// unexpectedOutputWarning names the extensions found when none were expected.
func unexpectedOutputWarning(order, found []string) string {
	if len(order) == 0 {
		order = DefaultArtifactOrder
	}
	return fmt.Sprintf("produced files but no %s output; found extensions: %s",
		strings.Join(order, " or "), strings.Join(found, ", "))
}
