package ingestion

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/docsync/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, root, rel string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(rel), 0o644))
}

func TestScan(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "b.csv")
	touch(t, root, "a/report.PDF")
	touch(t, root, "a/notes.docx")
	touch(t, root, "a/~$notes.docx")
	touch(t, root, ".git/config.csv")
	touch(t, root, ".env")
	touch(t, root, "readme.md")

	files, errs, err := Scan(root)
	require.NoError(t, err)
	assert.Empty(t, errs)

	var paths []string
	for _, f := range files {
		paths = append(paths, f.Path)
		assert.True(t, filepath.IsAbs(f.AbsPath))
		assert.Equal(t, int64(len(f.Path)), f.Size)
	}
	assert.Equal(t, []string{"a/notes.docx", "a/report.PDF", "b.csv"}, paths)
	assert.Equal(t, core.FormatDOCX, files[0].Format)
	assert.Equal(t, core.FormatPDF, files[1].Format)
	assert.Equal(t, core.FormatCSV, files[2].Format)
}

func TestScan_SkipsSymlinks(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	touch(t, outside, "x.csv")
	touch(t, root, "y.csv")
	if err := os.Symlink(outside, filepath.Join(root, "link")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	files, _, err := Scan(root)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "y.csv", files[0].Path)
}

func TestScan_InvalidRoot(t *testing.T) {
	_, _, err := Scan(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, ErrSourceDir)

	file := filepath.Join(t.TempDir(), "file.csv")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, _, err = Scan(file)
	assert.ErrorIs(t, err, ErrSourceDir)
}
