package security

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrPathTraversal  = errors.New("path traversal detected")
	ErrPathOutsideDir = errors.New("path escapes directory")
	ErrInvalidPath    = errors.New("invalid path")
)

var traversalPatterns = []string{
	"..",
	"%2e%2e",
	"%252e%252e",
	"\\",
}

func containsTraversalPattern(path string) bool {
	lowerPath := strings.ToLower(path)
	for _, pattern := range traversalPatterns {
		if strings.Contains(lowerPath, pattern) {
			return true
		}
	}
	return false
}

// CleanObjectPath validates an object key taken from a request URL. Keys
// are relative, slash-separated and may not climb out of the key space.
func CleanObjectPath(key string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" || strings.ContainsRune(key, 0) {
		return "", ErrInvalidPath
	}
	if containsTraversalPattern(key) {
		return "", ErrPathTraversal
	}
	return key, nil
}

// ValidatePathInDir resolves path and checks that it, and any symlink along
// the way, stays inside dir. It returns the cleaned absolute path.
func ValidatePathInDir(path, dir string) (string, error) {
	base, err := filepath.Abs(filepath.Clean(dir))
	if err != nil {
		return "", ErrInvalidPath
	}

	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(base, target)
	}
	target = filepath.Clean(target)

	rel, err := filepath.Rel(base, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", ErrPathOutsideDir
	}

	if err := checkSymlinkEscape(base, rel); err != nil {
		return "", err
	}
	return target, nil
}

func checkSymlinkEscape(base, rel string) error {
	resolvedBase, err := filepath.EvalSymlinks(base)
	if err != nil {
		resolvedBase = base
	}

	current := base
	for _, part := range strings.Split(rel, string(os.PathSeparator)) {
		if part == "" || part == "." {
			continue
		}
		current = filepath.Join(current, part)

		info, err := os.Lstat(current)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return ErrInvalidPath
		}
		if info.Mode()&os.ModeSymlink == 0 {
			continue
		}

		resolved, err := filepath.EvalSymlinks(current)
		if err != nil {
			return ErrInvalidPath
		}
		r, err := filepath.Rel(resolvedBase, resolved)
		if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(os.PathSeparator)) {
			return ErrPathOutsideDir
		}
	}
	return nil
}
