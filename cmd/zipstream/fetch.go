package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jaddr2line/zipstream"
	"github.com/spf13/pflag"
)

func fetchCmd(args []string) error {
	fs := pflag.NewFlagSet("fetch", pflag.ContinueOnError)
	dest := fs.StringP("dest", "C", ".", "directory to extract into")
	perms := fs.Bool("perms", false, "preserve permissions")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("expected exactly one url, got %d", fs.NArg())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return fetch(ctx, http.DefaultClient, fs.Arg(0), zipstream.ExtractOptions{
		Base:                *dest,
		PreservePermissions: *perms,
	})
}

// fetch downloads the archive at url and extracts it.
// The archive is spooled to a temporary file because the ZIP directory sits at its end.
func fetch(ctx context.Context, client *http.Client, url string, opts zipstream.ExtractOptions) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download: %s", resp.Status)
	}

	tmp, err := os.CreateTemp("", "zipstream-*.zip")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	// a server-side failure shows up here as an unexpected EOF
	n, err := io.Copy(tmp, resp.Body)
	if err != nil {
		return fmt.Errorf("download interrupted after %d bytes: %w", n, err)
	}

	if opts.Base != "" {
		if err := os.MkdirAll(opts.Base, 0755); err != nil {
			return err
		}
	}
	return zipstream.Extract(tmp, n, opts)
}
