// Package pathguard confines user-supplied paths to a single base directory.
//
// Every entry point that turns user input into a filesystem path goes through
// a Validator; no other package performs its own containment checks.
package pathguard

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/simpleflo/filescout/pkg/models"
)

// Validator resolves user paths against a fixed base directory.
type Validator struct {
	base string
}

// New creates a Validator rooted at base. The base must be absolute.
func New(base string) (*Validator, error) {
	if base == "" || !filepath.IsAbs(base) {
		return nil, models.NewError(models.ErrConfigInvalid, "base directory must be an absolute path").
			WithDetails("base", base)
	}
	return &Validator{base: filepath.Clean(base)}, nil
}

// Base returns the cleaned base directory.
func (v *Validator) Base() string {
	return v.base
}

// ValidatePath is a convenience wrapper for one-off checks against base.
func ValidatePath(userPath, base string) (string, error) {
	v, err := New(base)
	if err != nil {
		return "", err
	}
	return v.ValidatePath(userPath)
}

// ValidatePath returns the normalized absolute form of userPath, or an
// E_INVALID_PATH error if it escapes the base. Relative inputs are resolved
// against the base. The returned path is not symlink-resolved, so passing it
// back in yields the same value.
func (v *Validator) ValidatePath(userPath string) (string, error) {
	if strings.ContainsRune(userPath, 0) {
		return "", invalid(userPath, "path contains a null byte")
	}
	if strings.HasPrefix(userPath, "~") {
		return "", invalid(userPath, "home directory expansion is not allowed")
	}
	if hasDotDot(userPath) {
		return "", invalid(userPath, "path traversal is not allowed")
	}

	var candidate string
	switch {
	case userPath == "":
		candidate = v.base
	case filepath.IsAbs(userPath):
		candidate = filepath.Clean(userPath)
	default:
		candidate = filepath.Join(v.base, userPath)
	}

	if !within(v.base, candidate) {
		return "", invalid(userPath, "path is outside the allowed directory")
	}

	// Symlinks inside the base may still point outside it. Targets that do
	// not exist yet are accepted here and caught by the caller's stat.
	resolved, err := filepath.EvalSymlinks(candidate)
	if err == nil {
		resolvedBase, berr := filepath.EvalSymlinks(v.base)
		if berr != nil {
			resolvedBase = v.base
		}
		if !within(resolvedBase, resolved) {
			return "", invalid(userPath, "path resolves outside the allowed directory")
		}
	}

	return candidate, nil
}

// Display renders path the way a user of the base sees it: rooted at the
// base, so with a base of "/" paths are unchanged. Paths outside the base
// are returned as is.
func (v *Validator) Display(path string) string {
	if !within(v.base, path) {
		return path
	}
	rel, err := filepath.Rel(v.base, path)
	if err != nil {
		return path
	}
	if rel == "." {
		return string(filepath.Separator)
	}
	return string(filepath.Separator) + rel
}

// Stat validates userPath and checks that it names an existing directory.
func (v *Validator) Stat(userPath string) (string, error) {
	root, err := v.ValidatePath(userPath)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", models.NewError(models.ErrPathNotFound, "path does not exist").
				WithDetails("path", userPath)
		}
		if errors.Is(err, os.ErrPermission) {
			return "", models.Wrap(models.ErrPermissionDenied, "cannot access path", err).
				WithDetails("path", userPath)
		}
		return "", models.Wrap(models.ErrInternal, "stat path", err)
	}
	if !info.IsDir() {
		return "", models.NewError(models.ErrNotADirectory, "path is not a directory").
			WithDetails("path", userPath)
	}
	return root, nil
}

func hasDotDot(p string) bool {
	for _, seg := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == filepath.Separator }) {
		if seg == ".." {
			return true
		}
	}
	return false
}

func within(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func invalid(path, msg string) error {
	return models.NewError(models.ErrInvalidPath, msg).WithDetails("path", path)
}
