// Command ripstore is the CLI front-end over internal/zipdevice: it
// mounts ZIP archives as browsable filesystems, dumps a mounted
// archive's entry names and sizes, serves a scratch directory
// over HTTP, and packs a directory tree into a ZIP/ZIP64 archive.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/xerrors"
)

var debug = flag.Bool("debug", false, "format error messages with additional detail")

type cmd struct {
	fn func(ctx context.Context, args []string) error
}

var verbs = map[string]cmd{
	"mount": {cmdmount},
	"stats": {cmdstats},
	"serve": {cmdserve},
	"pack":  {cmdpack},
}

func usage(fset *flag.FlagSet, help string) func() {
	return func() {
		fmt.Fprintln(os.Stderr, help)
		fset.PrintDefaults()
	}
}

// interruptibleContext returns a context canceled on SIGINT/SIGTERM,
// for subcommands (serve, mount) that run until told to stop.
func interruptibleContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sig:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sig)
	}()
	return ctx, cancel
}

func funcmain() error {
	flag.Parse()
	args := flag.Args()
	verb := "stats"
	if len(args) > 0 {
		verb, args = args[0], args[1:]
	}

	if verb == "help" {
		fmt.Fprintf(os.Stderr, "ripstore [-flags] <command> [-flags] <args>\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "\tmount  - mount a ZIP archive as a FUSE filesystem\n")
		fmt.Fprintf(os.Stderr, "\tstats  - dump a ZIP archive's entry names and sizes\n")
		fmt.Fprintf(os.Stderr, "\tserve  - serve a scratch directory (or debug state) over HTTP\n")
		fmt.Fprintf(os.Stderr, "\tpack   - pack a directory tree into a ZIP/ZIP64 archive\n")
		os.Exit(2)
	}

	ctx, cancel := interruptibleContext()
	defer cancel()

	v, ok := verbs[verb]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", verb)
		fmt.Fprintf(os.Stderr, "syntax: ripstore <command> [options]\n")
		os.Exit(2)
	}
	if err := v.fn(ctx, args); err != nil {
		if *debug {
			return fmt.Errorf("%s: %+v", verb, err)
		}
		return xerrors.Errorf("%s: %w", verb, err)
	}
	return nil
}

func main() {
	if err := funcmain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
