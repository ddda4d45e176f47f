package zipstream

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Locator resolves archive identifiers to directories under a base path.
type Locator struct {
	base string
}

// NewLocator creates a Locator rooted at base.
// The base path is made absolute so that resolved directories do not depend on the working directory later.
func NewLocator(base string) (*Locator, error) {
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base path %q: %w", base, err)
	}
	return &Locator{base: abs}, nil
}

// Base returns the absolute base path.
func (l *Locator) Base() string {
	return l.base
}

// Resolve returns the absolute path of the directory for the identifier.
// Identifiers must be a single path segment.
// Returns ErrInvalidIdentifier for anything else, and ErrArchiveNotFound if no such directory exists.
func (l *Locator) Resolve(id string) (string, error) {
	if err := validateIdentifier(id); err != nil {
		return "", err
	}

	path := filepath.Join(l.base, id)
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("%w: %q", ErrArchiveNotFound, id)
	case err != nil:
		return "", err
	case !info.IsDir():
		return "", fmt.Errorf("%w: %q is not a directory", ErrArchiveNotFound, id)
	}

	return path, nil
}

func validateIdentifier(id string) error {
	switch {
	case id == "", id == ".", id == "..":
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, id)
	case strings.ContainsAny(id, "/\\\x00"):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidIdentifier, id)
	}
	return nil
}
