package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseutil"
	"golang.org/x/xerrors"

	"github.com/sanjeekswipro/ripstore/internal/scratch"
	"github.com/sanjeekswipro/ripstore/internal/zipdevice"
)

const mountHelp = `ripstore mount [-flags] <mountpoint>

Mount a ZIP archive as a read-only FUSE
file system, every logical file presented as a direct child of the
mount point.

Example:
  % ripstore mount -filename=assets.zip /mnt/assets
`

func cmdmount(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("mount", flag.ExitOnError)
	var (
		filename   = fset.String("filename", "", "path to the ZIP archive to mount")
		scratchDir = fset.String("scratch", "", "directory for scratch extraction files (defaults to a new temporary directory)")
		ignoreCase = fset.Bool("ignorecase", false, "match entry names case-insensitively")
		checkCRC   = fset.Bool("checkcrc32", true, "verify each entry's CRC-32 as it is extracted")
	)
	fset.Usage = usage(fset, mountHelp)
	fset.Parse(args)
	if fset.NArg() != 1 {
		return xerrors.Errorf("syntax: mount [-flags] <mountpoint>")
	}
	mountpoint := fset.Arg(0)

	backing, err := backingDevice(*scratchDir)
	if err != nil {
		return err
	}

	dev := zipdevice.New(backing, 0)
	if *filename != "" {
		if err := dev.SetParam("Filename", *filename); err != nil {
			return err
		}
	}
	if err := dev.SetParam("IgnoreCase", *ignoreCase); err != nil {
		return err
	}
	if err := dev.SetParam("CheckCRC32", *checkCRC); err != nil {
		return err
	}
	if err := dev.Mount(); err != nil {
		return xerrors.Errorf("mount: %w", err)
	}

	fs := zipdevice.NewFuseFS(dev)
	server := fuseutil.NewFileSystemServer(fs)
	mfs, err := fuse.Mount(mountpoint, server, &fuse.MountConfig{
		FSName:   "ripstore",
		ReadOnly: true,
	})
	if err != nil {
		return xerrors.Errorf("fuse.Mount: %w", err)
	}

	log.Printf("mounted %s at %s", *filename, mountpoint)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sig:
			syscall.Unmount(mountpoint, 0)
		case <-ctx.Done():
			syscall.Unmount(mountpoint, 0)
		}
	}()

	return mfs.Join(ctx)
}

func backingDevice(dir string) (*scratch.HostFS, error) {
	if dir == "" {
		var err error
		dir, err = os.MkdirTemp("", "ripstore-scratch")
		if err != nil {
			return nil, fmt.Errorf("creating scratch dir: %w", err)
		}
	}
	return scratch.NewHostFS(dir)
}
