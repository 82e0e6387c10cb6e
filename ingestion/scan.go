package ingestion

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/poiesic/docsync/core"
)

// Scan walks root and returns every supported file in lexical path order.
// Hidden entries, Office lock files (~$name) and symlinks are skipped.
// Entries that cannot be read are returned in the error map keyed by relative
// path; the walk continues past them.
func Scan(root string) ([]core.SourceFile, map[string]error, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrSourceDir, err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrSourceDir, err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("%w: %s is not a directory", ErrSourceDir, root)
	}

	var files []core.SourceFile
	errs := make(map[string]error)

	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, walkErr error) error {
		rel, relErr := filepath.Rel(absRoot, p)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if walkErr != nil {
			if p == absRoot {
				return walkErr
			}
			errs[rel] = walkErr
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if p == absRoot {
			return nil
		}
		if skipEntry(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || d.Type()&fs.ModeSymlink != 0 || !d.Type().IsRegular() {
			return nil
		}

		format := core.FormatFromPath(p)
		if format == core.FormatUnknown {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			errs[rel] = err
			return nil
		}

		files = append(files, core.SourceFile{
			Path:    rel,
			AbsPath: p,
			Size:    fi.Size(),
			ModTime: fi.ModTime().UTC(),
			Format:  format,
		})
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrSourceDir, err)
	}
	return files, errs, nil
}

func skipEntry(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$")
}
