package main

import (
	"context"
	"fmt"
	"strings"

	tex2pdf "github.com/alnah/go-tex2pdf"
	"github.com/alnah/go-tex2pdf/internal/fallback"
	"github.com/alnah/go-tex2pdf/internal/fileutil"
	"github.com/alnah/go-tex2pdf/internal/logfields"
)

// runPatch prints the source with fallback definitions injected, without
// compiling it.
func runPatch(ctx context.Context, args []string, env *Environment) error {
	f := &patchFlags{}
	fs := buildPatchFlagSet(f)

	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if f.list {
		printRules(env, tex2pdf.DefaultRules())
		return nil
	}

	input, err := singleArg(fs)
	if err != nil {
		return err
	}
	cfg, err := resolveConfig(&f.common, &toolFlags{exclude: f.exclude}, env)
	if err != nil {
		return hinted(err, &f.common, nil)
	}
	logger := newLogger(env.Stderr, cfg.Log, f.common.quiet)

	source, err := readInput(input, env.Stdin)
	if err != nil {
		return err
	}

	// Patching is always on for this command; only exclusions apply.
	cfg.Fallback.Disable = false
	compiler := env.NewCompiler(compilerOptions(cfg, logger, nil)...)
	patch := compiler.Patch(ctx, string(source))

	if f.output == "" || f.output == stdioPath {
		if _, err := fmt.Fprint(env.Stdout, patch.Source); err != nil {
			return fmt.Errorf("%w: stdout: %v", ErrWriteOutput, err)
		}
	} else if err := fileutil.WriteFileAtomic(f.output, []byte(patch.Source), filePermissions); err != nil {
		return hinted(fmt.Errorf("%w: %v", ErrWriteOutput, err), &f.common, nil)
	}

	if len(patch.Applied) == 0 {
		logger.Info("nothing to patch", logfields.Path(input))
		return nil
	}
	logger.Info("patched",
		logfields.Path(input),
		logfields.Applied(patch.Applied),
		logfields.Packages(patch.Packages),
	)
	return nil
}

// printRules lists rule names with the packages they load.
func printRules(env *Environment, rules []fallback.Rule) {
	for _, r := range rules {
		if len(r.Requires) == 0 {
			fmt.Fprintln(env.Stdout, r.Name)
			continue
		}
		fmt.Fprintf(env.Stdout, "%-14s %s\n", r.Name, strings.Join(r.Requires, ", "))
	}
}
