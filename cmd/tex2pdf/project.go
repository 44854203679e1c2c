package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	tex2pdf "github.com/alnah/go-tex2pdf"
	"github.com/alnah/go-tex2pdf/internal/fallback"
	"github.com/alnah/go-tex2pdf/internal/fileutil"
	"github.com/alnah/go-tex2pdf/internal/hints"
	"github.com/alnah/go-tex2pdf/internal/logfields"
)

// buildArtifacts are left out of projects so a stale aux file from a local
// build cannot change the result.
var buildArtifacts = map[string]bool{
	".aux": true, ".log": true, ".out": true, ".toc": true, ".lof": true, ".lot": true,
	".fls": true, ".fdb_latexmk": true, ".synctex": true, ".bbl": true, ".blg": true,
	".nav": true, ".snm": true, ".xdv": true,
}

var documentClassPattern = regexp.MustCompile(`(?m)^[^%\n]*\\documentclass`)

// runProject compiles a directory of LaTeX sources.
func runProject(ctx context.Context, args []string, env *Environment) error {
	f := &projectFlags{}
	fs := buildProjectFlagSet(f)
	dir, err := parseSingleArg(fs, args)
	if err != nil {
		return err
	}

	job, err := newCompileJob(&f.compileFlags, env)
	if err != nil {
		return hinted(err, &f.common, &f.out)
	}
	if err := job.compileProject(ctx, dir, f.main); err != nil {
		return hinted(err, &f.common, &f.out)
	}
	return nil
}

// compileProject loads dir, resolves the main file and compiles it.
func (j *compileJob) compileProject(ctx context.Context, dir, mainFile string) error {
	files, err := loadProject(dir)
	if err != nil {
		return err
	}
	if mainFile == "" {
		if mainFile, err = detectMain(files); err != nil {
			return err
		}
	}
	mainFile = path.Clean(filepath.ToSlash(mainFile))
	files = withoutOwnOutput(files, mainFile)

	output := j.flags.out.output
	if output == "" {
		pdf, err := fileutil.ReplaceExt(mainFile, ".pdf")
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUsage, err)
		}
		output = filepath.Join(dir, filepath.FromSlash(pdf))
	}
	if output != stdioPath {
		if err := fileutil.CheckWritable(filepath.Dir(output)); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrWriteOutput, output, err)
		}
	}

	j.logger.Debug("compiling project", logfields.Path(dir), logfields.MainFile(mainFile), logfields.Files(len(files)))
	result, err := j.compiler.CompileProject(ctx, tex2pdf.Project{Files: files, MainFile: mainFile})
	if err != nil {
		source, _ := textOf(files, mainFile)
		j.writeFailure(ctx, err, path.Base(mainFile), source)
		return err
	}
	return j.writeSuccess(dir, output, result)
}

// loadProject reads every regular, non-hidden file under dir. Binary files
// are base64 encoded. Paths are slash-separated and relative to dir.
func loadProject(dir string) ([]tex2pdf.File, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadInput, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrUsage, dir)
	}

	var files []tex2pdf.File
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || buildArtifacts[strings.ToLower(filepath.Ext(p))] {
			return nil
		}

		data, err := os.ReadFile(p) // #nosec G304 -- walking the user's project directory
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		f := tex2pdf.File{Path: filepath.ToSlash(rel), Content: string(data)}
		if fileutil.IsBinary(p, data) {
			f.Content = base64.StdEncoding.EncodeToString(data)
			f.Binary = true
		}
		files = append(files, f)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadInput, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s", tex2pdf.ErrNoFiles, dir)
	}
	return files, nil
}

// withoutOwnOutput drops the PDF a previous build of mainFile left next to
// it. Other PDFs are kept since documents include them as figures.
func withoutOwnOutput(files []tex2pdf.File, mainFile string) []tex2pdf.File {
	stale := strings.TrimSuffix(mainFile, path.Ext(mainFile)) + ".pdf"
	return slices.DeleteFunc(files, func(f tex2pdf.File) bool {
		return f.Path == stale
	})
}

// detectMain picks main.tex, or the only .tex file with a \documentclass.
func detectMain(files []tex2pdf.File) (string, error) {
	var candidates []string
	for _, f := range files {
		if f.Binary || !fallback.IsDocumentFile(f.Path) {
			continue
		}
		if f.Path == tex2pdf.MainFileName {
			return f.Path, nil
		}
		if documentClassPattern.MatchString(f.Content) {
			candidates = append(candidates, f.Path)
		}
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}
	slices.Sort(candidates)
	err := fmt.Errorf("%w: no unique root document", tex2pdf.ErrMainFileNotFound)
	return "", &hintedError{err: err, msg: err.Error() + hints.ForMainFile(candidates)}
}

// textOf returns the text content of the file at rel.
func textOf(files []tex2pdf.File, rel string) (string, bool) {
	for _, f := range files {
		if f.Path == rel && !f.Binary {
			return f.Content, true
		}
	}
	return "", false
}

// isHinted reports whether err already carries hints.
func isHinted(err error) bool {
	var he *hintedError
	return errors.As(err, &he)
}
