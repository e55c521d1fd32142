package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/klauspost/pgzip"
	gzipped "github.com/lpar/gzipped/v2"
	"golang.org/x/xerrors"

	"github.com/sanjeekswipro/ripstore/internal/ripfs"
	"github.com/sanjeekswipro/ripstore/internal/scratch"
	"github.com/sanjeekswipro/ripstore/internal/zipdevice"
)

const serveHelp = `ripstore serve [-flags] <archive.zip>

Extract a ZIP archive's logical files into a scratch directory and
serve that directory over HTTP (gzip-negotiated), plus a /debug dump
of device-status state.

Example:
  % ripstore serve -listen=:8080 assets.zip
`

func cmdserve(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("serve", flag.ExitOnError)
	var (
		listen = fset.String("listen", ":8080", "[host]:port listen address")
	)
	fset.Usage = usage(fset, serveHelp)
	fset.Parse(args)
	if fset.NArg() != 1 {
		return xerrors.Errorf("syntax: serve [-flags] <archive.zip>")
	}
	path := fset.Arg(0)

	scratchDir, err := os.MkdirTemp("", "ripstore-serve")
	if err != nil {
		return err
	}
	defer os.RemoveAll(scratchDir)
	backing, err := scratch.NewHostFS(scratchDir)
	if err != nil {
		return err
	}

	dev := zipdevice.New(backing, 0)
	if err := dev.SetParam("Filename", path); err != nil {
		return err
	}
	if err := dev.Mount(); err != nil {
		return xerrors.Errorf("mount: %w", err)
	}

	extractDir, err := os.MkdirTemp("", "ripstore-extracted")
	if err != nil {
		return err
	}
	defer os.RemoveAll(extractDir)
	if err := extractAll(dev, extractDir); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/", gzipped.FileServer(http.Dir(extractDir)))
	mux.HandleFunc("/debug", debugHandler(dev))

	ln, err := net.Listen("tcp", *listen)
	if err != nil {
		return err
	}
	addr := ln.Addr().String()
	log.Printf("serving %s on %s (extracted to %s)", path, addr, extractDir)

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		server.Close()
	}()
	if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// extractAll copies every logical file out to plain files under dir
// so gzipped.FileServer can serve (and transparently prefer any .gz
// sibling of) them; the device's own scratch files stay internal.
func extractAll(dev *zipdevice.Device, dir string) error {
	it := dev.StartList()
	for {
		name, ok := it.Next()
		if !ok {
			return nil
		}
		h, err := dev.Open(name, ripfs.RDONLY)
		if err != nil {
			return err
		}
		dest := dir + "/" + strings.ReplaceAll(name, "/", "_")
		f, err := os.Create(dest)
		if err != nil {
			h.Close()
			return err
		}
		buf := make([]byte, 64*1024)
		for {
			n, rerr := h.Read(buf)
			if n > 0 {
				if _, werr := f.Write(buf[:n]); werr != nil {
					f.Close()
					h.Close()
					return werr
				}
			}
			if rerr != nil {
				break
			}
		}
		f.Close()
		h.Close()
	}
}

// debugHandler gzip-compresses (via pgzip) a plain-text dump of every
// mounted file's name and extracted size when the requester accepts
// gzip.
func debugHandler(dev *zipdevice.Device) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		var out interface {
			io.Writer
			Close() error
		}
		if strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			w.Header().Set("Content-Encoding", "gzip")
			out = pgzip.NewWriter(w)
		} else {
			out = nopCloser{w}
		}
		defer out.Close()

		it := dev.StartList()
		for {
			name, ok := it.Next()
			if !ok {
				break
			}
			info, err := dev.Stat(name)
			if err != nil {
				continue
			}
			fmt.Fprintf(out, "%s\t%d\n", name, info.Bytes)
		}
	}
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
