// Package workspace materializes compilation inputs into an isolated,
// uniquely named temporary directory.
//
// All validation (path safety, duplicates, binary decoding) happens in
// Prepare, before anything touches the disk. Create then only performs I/O.
package workspace

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// DirPrefix prefixes every workspace directory name.
const DirPrefix = "tex2pdf-"

// File permissions inside a workspace.
const (
	dirPermissions  = 0o750
	filePermissions = 0o640
)

// Sentinel errors for workspace operations.
var (
	ErrUnsafePath       = errors.New("unsafe file path")
	ErrDuplicatePath    = errors.New("duplicate file path")
	ErrInvalidEncoding  = errors.New("invalid binary encoding")
	ErrMainNotFound     = errors.New("main file not found")
	ErrNoFiles          = errors.New("no files")
	ErrOutsideWorkspace = errors.New("path escapes workspace")
)

// File is one input file. Binary content is base64 encoded.
type File struct {
	Path    string
	Content string
	Binary  bool
}

// entry is a validated file ready to be written.
type entry struct {
	rel    string // slash-separated, cleaned
	data   []byte
	binary bool
}

// Plan is a validated set of files with a resolved main file.
type Plan struct {
	entries []entry
	main    string
}

// Main returns the cleaned relative path of the main file.
func (p *Plan) Main() string {
	return p.main
}

// Len returns the number of files in the plan.
func (p *Plan) Len() int {
	return len(p.entries)
}

// RewriteText replaces the content of every text (non-binary) file with
// fn(path, content). Binary files are never passed to fn.
func (p *Plan) RewriteText(fn func(rel, content string) string) {
	for i := range p.entries {
		if p.entries[i].binary {
			continue
		}
		p.entries[i].data = []byte(fn(p.entries[i].rel, string(p.entries[i].data)))
	}
}

// Text returns the content of a text file in the plan.
func (p *Plan) Text(rel string) (string, bool) {
	for _, e := range p.entries {
		if e.rel == rel && !e.binary {
			return string(e.data), true
		}
	}
	return "", false
}

// Prepare validates files and resolves main among them.
// Returns ErrNoFiles, ErrMainNotFound, ErrUnsafePath, ErrDuplicatePath or
// ErrInvalidEncoding; no I/O is performed.
func Prepare(files []File, main string) (*Plan, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	plan := &Plan{entries: make([]entry, 0, len(files))}
	seen := make(map[string]bool, len(files))

	for _, f := range files {
		rel, err := CleanPath(f.Path)
		if err != nil {
			return nil, err
		}
		if seen[rel] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicatePath, rel)
		}
		seen[rel] = true

		data := []byte(f.Content)
		if f.Binary {
			data, err = base64.StdEncoding.DecodeString(f.Content)
			if err != nil {
				return nil, fmt.Errorf("%w: %q: %v", ErrInvalidEncoding, rel, err)
			}
		}
		plan.entries = append(plan.entries, entry{rel: rel, data: data, binary: f.Binary})
	}

	mainRel, err := CleanPath(main)
	if err != nil || !seen[mainRel] {
		return nil, fmt.Errorf("%w: %q", ErrMainNotFound, main)
	}
	plan.main = mainRel

	return plan, nil
}

// CleanPath normalizes a relative, slash-or-backslash separated path and
// rejects anything that could resolve outside the workspace root.
func CleanPath(p string) (string, error) {
	if p == "" || strings.ContainsRune(p, 0) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, p)
	}

	slashed := strings.ReplaceAll(p, `\`, "/")
	if strings.HasPrefix(slashed, "/") || filepath.IsAbs(p) || hasDriveLetter(slashed) {
		return "", fmt.Errorf("%w: %q (absolute)", ErrUnsafePath, p)
	}
	for _, seg := range strings.Split(slashed, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q (parent segment)", ErrUnsafePath, p)
		}
	}

	cleaned := path.Clean(slashed)
	if cleaned == "." || cleaned == "" {
		return "", fmt.Errorf("%w: %q (empty)", ErrUnsafePath, p)
	}
	return cleaned, nil
}

// hasDriveLetter reports a Windows volume prefix such as "C:".
func hasDriveLetter(p string) bool {
	if len(p) < 2 || p[1] != ':' {
		return false
	}
	c := p[0]
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

// Workspace is an exclusively owned directory tree for one compilation.
type Workspace struct {
	Root     string // Absolute workspace directory
	MainPath string // Absolute path of the main file
}

// MainDir returns the directory containing the main file.
func (w *Workspace) MainDir() string {
	return filepath.Dir(w.MainPath)
}

// Remove deletes the workspace. Safe to call more than once.
func (w *Workspace) Remove() error {
	if w == nil || w.Root == "" {
		return nil
	}
	if err := os.RemoveAll(w.Root); err != nil {
		return fmt.Errorf("removing workspace %s: %w", w.Root, err)
	}
	return nil
}

// Materializer creates workspaces under BaseDir (os.TempDir when empty).
type Materializer struct {
	BaseDir string
}

// Create allocates a fresh workspace and writes every planned file into it.
// On any write error the partially written directory is removed and the
// error returned; nothing is retried.
func (m *Materializer) Create(plan *Plan) (*Workspace, error) {
	root, err := os.MkdirTemp(m.BaseDir, DirPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("creating workspace: %w", err)
	}
	root, err = filepath.Abs(root)
	if err != nil {
		_ = os.RemoveAll(root)
		return nil, fmt.Errorf("resolving workspace: %w", err)
	}

	ws := &Workspace{Root: root}
	for _, e := range plan.entries {
		if err := writeEntry(root, e); err != nil {
			_ = ws.Remove()
			return nil, err
		}
	}
	ws.MainPath = filepath.Join(root, filepath.FromSlash(plan.main))

	return ws, nil
}

// writeEntry writes one file, creating parent directories as needed.
func writeEntry(root string, e entry) error {
	target := filepath.Join(root, filepath.FromSlash(e.rel))
	if !Contains(root, target) {
		return fmt.Errorf("%w: %s", ErrOutsideWorkspace, e.rel)
	}

	if err := os.MkdirAll(filepath.Dir(target), dirPermissions); err != nil {
		return fmt.Errorf("creating directory for %s: %w", e.rel, err)
	}
	if err := os.WriteFile(target, e.data, filePermissions); err != nil {
		return fmt.Errorf("writing %s: %w", e.rel, err)
	}
	return nil
}

// Contains reports whether target is root itself or lies beneath it.
func Contains(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
