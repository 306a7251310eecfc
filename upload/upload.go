// Package upload hosts rendered charts where the chat transport can fetch
// them. The chat webhook takes image URLs, never inline bytes.
package upload

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/mayodev/opsmail/transport"
)

// Host stores data under name and returns its public URL.
type Host interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
}

// FTPOptions describes the web host's FTP account. Files land in Dir and are
// served at PublicBase.
type FTPOptions struct {
	Addr       string
	Username   string
	Password   string
	Dir        string
	PublicBase string
	Policy     transport.Policy
}

type FTP struct {
	opts   FTPOptions
	logger *slog.Logger
}

func NewFTP(opts FTPOptions, logger *slog.Logger) (*FTP, error) {
	if strings.TrimSpace(opts.Addr) == "" {
		return nil, fmt.Errorf("ftp address is empty")
	}
	if _, err := url.Parse(opts.PublicBase); err != nil || opts.PublicBase == "" {
		return nil, fmt.Errorf("invalid public base url %q", opts.PublicBase)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FTP{opts: opts, logger: logger}, nil
}

func (f *FTP) Put(ctx context.Context, name string, data []byte) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}
	remote := path.Join(f.opts.Dir, name)

	err := transport.Retry(ctx, f.opts.Policy, "ftp store", f.logger, func(ctx context.Context) error {
		timeout := f.opts.Policy.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		conn, err := ftp.Dial(f.opts.Addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(timeout))
		if err != nil {
			return fmt.Errorf("dial: %w", err)
		}
		defer conn.Quit()

		if err := conn.Login(f.opts.Username, f.opts.Password); err != nil {
			return transport.Permanent(fmt.Errorf("login: %w", err))
		}
		if err := conn.Stor(remote, bytes.NewReader(data)); err != nil {
			return fmt.Errorf("stor %s: %w", remote, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	f.logger.Info("chart uploaded", "file", remote, "bytes", len(data))
	return joinURL(f.opts.PublicBase, name), nil
}

// Dir writes files into a local directory that a web server exposes at
// PublicBase.
type Dir struct {
	dir        string
	publicBase string
}

func NewDir(dir, publicBase string) (*Dir, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("upload directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &Dir{dir: dir, publicBase: publicBase}, nil
}

func (d *Dir) Put(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := validName(name); err != nil {
		return "", err
	}
	target := filepath.Join(d.dir, name)
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", target, err)
	}
	if d.publicBase == "" {
		return "file://" + filepath.ToSlash(target), nil
	}
	return joinURL(d.publicBase, name), nil
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("invalid artifact name %q", name)
	}
	return nil
}

func joinURL(base, name string) string {
	return strings.TrimSuffix(base, "/") + "/" + url.PathEscape(name)
}
