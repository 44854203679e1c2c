package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"
)

// Version is set at build time via ldflags.
var Version = "dev"

// envFile is loaded from the working directory when present. Variables
// already set in the environment win.
const envFile = ".env"

func main() {
	// A missing .env is the common case; a malformed one is reported.
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: %s: %v\n", envFile, err)
	}

	// Configure GOMAXPROCS with conditional logging
	// Error ignored: maxprocs.Set only fails if GOMAXPROCS env is invalid,
	// in which case Go runtime defaults apply and the program continues safely.
	if slices.Contains(os.Args, "-v") || slices.Contains(os.Args, "--verbose") {
		_, _ = maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		}))
	} else {
		_, _ = maxprocs.Set(maxprocs.Logger(func(string, ...interface{}) {}))
	}

	os.Exit(runMain(os.Args, DefaultEnv()))
}

// runMain dispatches a command and returns the process exit code.
func runMain(args []string, env *Environment) int {
	if len(args) < 2 {
		printUsage(env.Stderr)
		return ExitUsage
	}

	ctx, stop := notifyContext(context.Background())
	defer stop()

	cmd, rest := args[1], args[2:]
	var err error
	switch cmd {
	case "compile":
		err = runCompile(ctx, rest, env)
	case "project":
		err = runProject(ctx, rest, env)
	case "patch":
		err = runPatch(ctx, rest, env)
	case "watch":
		err = runWatch(ctx, rest, env)
	case "serve":
		err = runServe(ctx, rest, env)
	case "doctor":
		return runDoctorCmd(ctx, rest, env)
	case "completion":
		err = runCompletion(rest, env)
	case "version", "--version":
		fmt.Fprintf(env.Stdout, "tex2pdf %s\n", Version)
		return ExitSuccess
	case "help", "-h", "--help":
		err = runHelp(rest, env)
	default:
		fmt.Fprintf(env.Stderr, "unknown command: %s\n\n", cmd)
		printUsage(env.Stderr)
		return ExitUsage
	}

	if errors.Is(err, flag.ErrHelp) {
		if usage, ok := commandUsage[cmd]; ok {
			usage(env.Stdout)
		}
		return ExitSuccess
	}
	if err != nil {
		fmt.Fprintln(env.Stderr, err)
		if errors.Is(err, ErrUsage) || errors.Is(err, ErrNoInput) {
			if usage, ok := commandUsage[cmd]; ok {
				fmt.Fprintln(env.Stderr)
				usage(env.Stderr)
			}
		}
	}
	return exitCodeFor(err)
}
