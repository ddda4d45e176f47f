package zipstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
)

// ZipOptions are the options of a ZipProducer.
type ZipOptions struct {
	// Compression is the compression algorithm applied to files.
	// This package supports "deflate" and "store".
	// Defaults to deflate.
	Compression string

	// CompressionLevel is the deflate level to use.
	// Uses a sane default if omitted.
	CompressionLevel int

	// IncludePermissions is whether or not to record the permission codes of the files.
	// Otherwise files are recorded as 0644 and directories as 0755.
	IncludePermissions bool
}

// ZipProducer archives directories in-process, without an external tool.
// It produces the same kind of archive as the default ExecProducer command.
type ZipProducer struct {
	opts   ZipOptions
	method uint16
	comp   zip.Compressor
}

// NewZipProducer creates a ZipProducer.
func NewZipProducer(opts ZipOptions) (*ZipProducer, error) {
	method, comp, err := compressor(opts.Compression, opts.CompressionLevel)
	if err != nil {
		return nil, err
	}
	return &ZipProducer{
		opts:   opts,
		method: method,
		comp:   comp,
	}, nil
}

// Start begins writing the archive of dir into a pipe.
func (p *ZipProducer) Start(ctx context.Context, dir string) (Stream, error) {
	command := []string{"builtin-zip", dir}
	if err := ctx.Err(); err != nil {
		return nil, &SpawnError{Command: command, Err: err}
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &SpawnError{Command: command, Err: err}
	}
	if !info.IsDir() {
		return nil, &SpawnError{Command: command, Err: fmt.Errorf("%s is not a directory", dir)}
	}

	pr, pw := io.Pipe()
	s := &zipStream{
		pr:   pr,
		done: make(chan error, 1),
	}
	s.stop = context.AfterFunc(ctx, func() {
		pr.CloseWithError(ctx.Err())
	})

	go func() {
		err := p.writeArchive(ctx, pw, dir)
		pw.CloseWithError(err)
		s.done <- err
	}()

	return s, nil
}

// writeArchive walks dir and writes every entry below it to dst.
func (p *ZipProducer) writeArchive(ctx context.Context, dst io.Writer, dir string) error {
	zw := zip.NewWriter(dst)
	if p.comp != nil {
		zw.RegisterCompressor(p.method, p.comp)
	}

	err := filepath.WalkDir(dir, func(path string, _ fs.DirEntry, err error) error {
		// dont try to handle inaccessible files
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			// the root itself is not an entry
			return nil
		}

		// symlinks are archived as whatever they point to
		info, err := os.Stat(path)
		if err != nil {
			return err
		}

		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)

		switch {
		case info.IsDir():
			hdr.Name += "/"
			hdr.Method = zip.Store
			if !p.opts.IncludePermissions {
				hdr.SetMode(os.ModeDir | 0755)
			}
			// WalkDir does not descend into linked directories, so those are recorded empty
			_, err = zw.CreateHeader(hdr)
			return err
		case info.Mode().IsRegular():
			hdr.Method = p.method
			if !p.opts.IncludePermissions {
				hdr.SetMode(0644)
			}
			fw, err := zw.CreateHeader(hdr)
			if err != nil {
				return err
			}
			return copyFile(fw, path)
		default:
			// error if we dont know what to do with a special file
			return fmt.Errorf("unsupported special file: %s", path)
		}
	})
	if err != nil {
		return err
	}

	return zw.Close()
}

func copyFile(dst io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(dst, f)
	if err != nil {
		return err
	}

	return f.Close()
}

// errTerminated is the error seen by the archive writer when the reader goes away early.
var errTerminated = errors.New("archive stream terminated")

// zipStream is a running in-process archive writer.
type zipStream struct {
	pr   *io.PipeReader
	done chan error
	stop func() bool
	eof  bool
}

func (s *zipStream) Read(dst []byte) (int, error) {
	n, err := s.pr.Read(dst)
	if err == io.EOF {
		s.eof = true
	}
	return n, err
}

// Terminate stops the writer if it has not finished and waits for it to return.
func (s *zipStream) Terminate() error {
	s.stop()
	if !s.eof {
		s.pr.CloseWithError(errTerminated)
		<-s.done
		return nil
	}
	return <-s.done
}
