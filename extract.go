package zipstream

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// ExtractOptions is a set of options for extracting an archive into the filesystem.
type ExtractOptions struct {
	// Base is the directory entries are extracted into.
	// Defaults to the working directory.
	Base string

	// PreservePermissions is whether or not to apply the permission codes recorded in the archive.
	PreservePermissions bool
}

// Extract writes every entry of the archive into opts.Base.
// Entries which would land outside of the base directory are rejected.
func Extract(src io.ReaderAt, size int64, opts ExtractOptions) error {
	if opts.Base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		opts.Base = wd
	}

	zr, err := zip.NewReader(src, size)
	if err != nil {
		return fmt.Errorf("failed to read archive: %w", err)
	}

	for _, f := range zr.File {
		path, err := entryPath(opts.Base, f.Name)
		if err != nil {
			return err
		}

		mode := f.Mode()
		perm := os.FileMode(0644)
		if mode.IsDir() {
			perm = 0755
		}
		if opts.PreservePermissions && mode.Perm() != 0 {
			perm = mode.Perm()
		}

		switch {
		case mode.IsDir():
			err = os.MkdirAll(path, perm)
		case mode.IsRegular():
			err = extractFile(f, path, perm)
		default:
			err = fmt.Errorf("cannot extract special file %q", f.Name)
		}
		if err != nil {
			return err
		}
	}

	return nil
}

func extractFile(f *zip.File, path string, perm os.FileMode) error {
	err := os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}

	_, err = io.Copy(out, rc)
	if err != nil {
		out.Close()
		return err
	}

	return out.Close()
}

// errUnsafePath is returned for archive entries which escape the extraction directory.
var errUnsafePath = errors.New("unsafe path in archive")

// entryPath resolves an archive entry name below base.
func entryPath(base, name string) (string, error) {
	if name == "" || strings.Contains(name, "\x00") || filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: %q", errUnsafePath, name)
	}
	path := filepath.Join(base, filepath.FromSlash(name))
	rel, err := filepath.Rel(base, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", errUnsafePath, name)
	}
	return path, nil
}
