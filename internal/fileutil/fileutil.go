// Package fileutil provides file and path utility functions.
package fileutil

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Sentinel errors for file utility operations.
var (
	ErrExtensionEmpty         = errors.New("extension cannot be empty")
	ErrExtensionPathTraversal = errors.New("extension contains path separator or null byte")
)

// sniffLen bounds how much of a file IsBinary inspects.
const sniffLen = 8000

// binaryExtensions are always treated as binary regardless of content.
var binaryExtensions = map[string]bool{
	".pdf": true, ".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".eps": true, ".ps": true, ".svg": false, ".tif": true, ".tiff": true,
	".bmp": true, ".webp": true, ".zip": true, ".gz": true,
	".otf": true, ".ttf": true, ".woff": true, ".woff2": true, ".pfb": true,
}

// IsBinary reports whether a file must be transported base64 encoded.
// Known image, font and archive extensions are binary; otherwise the first
// bytes are sniffed for NUL or invalid UTF-8.
func IsBinary(path string, data []byte) bool {
	if bin, ok := binaryExtensions[strings.ToLower(filepath.Ext(path))]; ok {
		return bin
	}
	head := data
	if len(head) > sniffLen {
		head = head[:sniffLen]
		// Do not count a rune cut in half by the window.
		for i := 0; i < utf8.UTFMax && len(head) > 0 && !utf8.Valid(head); i++ {
			head = head[:len(head)-1]
		}
	}
	return bytes.IndexByte(head, 0) >= 0 || !utf8.Valid(head)
}

// WriteFileAtomic writes data to a temporary file next to path and renames
// it into place, so readers never observe a partially written file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		cleanup()
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}

// CheckWritable verifies that files can be created in dir.
func CheckWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".tex2pdf-probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

// ReplaceExt returns path with its extension replaced by ext.
// ext must start with a dot and must not contain separators.
func ReplaceExt(path, ext string) (string, error) {
	if err := ValidateExtension(strings.TrimPrefix(ext, ".")); err != nil {
		return "", err
	}
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext, nil
}

// ValidateExtension checks that the extension is safe for use in file names.
func ValidateExtension(extension string) error {
	if extension == "" {
		return ErrExtensionEmpty
	}
	if strings.ContainsAny(extension, "/\\\x00") {
		return ErrExtensionPathTraversal
	}
	return nil
}

// FileExists returns true if the path exists and is a regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// IsFilePath returns true if the string looks like a file path rather than a name.
// A string containing path separators (/, \) is treated as a path.
//
// Examples:
//   - "pdflatex" -> false (name)
//   - "./report.css" -> true (relative path)
//   - "/usr/bin/xelatex" -> true (absolute)
//   - "C:\texlive\bin\pdflatex.exe" -> true (Windows)
//   - "ci" -> false (config name)
func IsFilePath(s string) bool {
	return strings.ContainsAny(s, "/\\")
}
