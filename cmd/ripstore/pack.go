package main

import (
	"context"
	"flag"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/xerrors"

	"github.com/sanjeekswipro/ripstore/internal/scratch"
	"github.com/sanjeekswipro/ripstore/internal/zipdevice"
)

const packHelp = `ripstore pack [-flags] <srcdir> <archive.zip>

Pack a directory tree into a ZIP/ZIP64 archive via WriteonlyDevice.

Example:
  % ripstore pack ./assets assets.zip
`

func cmdpack(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("pack", flag.ExitOnError)
	var (
		zip64 = fset.Bool("zip64", false, "force ZIP64 records even for small entries")
	)
	fset.Usage = usage(fset, packHelp)
	fset.Parse(args)
	if fset.NArg() != 2 {
		return xerrors.Errorf("syntax: pack [-flags] <srcdir> <archive.zip>")
	}
	srcdir := fset.Arg(0)
	dest := fset.Arg(1)

	scratchDir, err := os.MkdirTemp("", "ripstore-pack")
	if err != nil {
		return err
	}
	defer os.RemoveAll(scratchDir)
	backing, err := scratch.NewHostFS(scratchDir)
	if err != nil {
		return err
	}

	w := zipdevice.NewWriteonly(backing, 0)
	if err := fs.WalkDir(os.DirFS(srcdir), ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := strings.ReplaceAll(path, string(filepath.Separator), "/")
		return packOne(w, filepath.Join(srcdir, path), name)
	}); err != nil {
		return xerrors.Errorf("walk: %w", err)
	}

	if err := w.Finalize(dest); err != nil {
		return xerrors.Errorf("finalize: %w", err)
	}
	log.Printf("packed %s into %s", srcdir, dest)
	return nil
}

func packOne(w *zipdevice.WriteonlyDevice, srcPath, name string) error {
	f, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer f.Close()

	h, err := w.OpenNext(name)
	if err != nil {
		return err
	}
	buf := make([]byte, 64*1024)
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			if _, werr := h.Write(buf[:n]); werr != nil {
				h.Abort()
				return werr
			}
		}
		if rerr != nil {
			break
		}
	}
	return w.CloseActive(h)
}
