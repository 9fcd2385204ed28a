// Package minify writes minified copies of stylesheets.
package minify

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tdm "github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

const mediaType = "text/css"

// Request asks for Source to be minified into Destination.
type Request struct {
	Source      string
	Destination string
	Encoding    string // WHATWG label; empty means utf8
	// Transform runs on the decoded source before minification.
	Transform func(ctx context.Context, contents []byte) ([]byte, error)
}

type Minifier interface {
	Minify(ctx context.Context, req Request) (string, error)
}

// CSS minifies with tdewolff/minify.
type CSS struct {
	m *tdm.M
}

func NewCSS() *CSS {
	m := tdm.New()
	m.AddFunc(mediaType, css.Minify)
	return &CSS{m: m}
}

// Minify returns a short description of the work done.
func (c *CSS) Minify(ctx context.Context, req Request) (string, error) {
	enc, err := lookupEncoding(req.Encoding)
	if err != nil {
		return "", err
	}
	raw, err := os.ReadFile(req.Source)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", req.Source, err)
	}
	src := raw
	if enc != nil {
		if src, err = enc.NewDecoder().Bytes(raw); err != nil {
			return "", fmt.Errorf("decode %s: %w", req.Source, err)
		}
	}
	if req.Transform != nil {
		if src, err = req.Transform(ctx, src); err != nil {
			return "", fmt.Errorf("transform %s: %w", req.Source, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	out, err := c.m.Bytes(mediaType, src)
	if err != nil {
		return "", fmt.Errorf("minify %s: %w", req.Source, err)
	}
	if enc != nil {
		if out, err = enc.NewEncoder().Bytes(out); err != nil {
			return "", fmt.Errorf("encode %s: %w", req.Destination, err)
		}
	}
	if err := writeFileAtomic(req.Destination, out); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s -> %s (%d -> %d bytes)", req.Source, req.Destination, len(raw), len(out)), nil
}

// lookupEncoding returns nil for UTF-8, which needs no conversion.
func lookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf8", "utf-8":
		return nil, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", name, err)
	}
	return enc, nil
}

// The temporary file carries no .css extension so watchers ignore it.
func writeFileAtomic(dst string, data []byte) error {
	dir := filepath.Dir(dst)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}
	name := tmp.Name()
	if _, err := bytes.NewReader(data).WriteTo(tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return fmt.Errorf("write %s: %w", dst, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("write %s: %w", dst, err)
	}
	if err := os.Chmod(name, 0o644); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("write %s: %w", dst, err)
	}
	if err := os.Rename(name, dst); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return nil
}
