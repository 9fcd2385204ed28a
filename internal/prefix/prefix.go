// Package prefix adds vendor prefixes to CSS before it is minified.
package prefix

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/loykin/sasswatch/internal/config"
)

type Transformer interface {
	Transform(ctx context.Context, contents []byte) ([]byte, error)
}

// Passthrough returns contents unchanged.
type Passthrough struct{}

func (Passthrough) Transform(_ context.Context, contents []byte) ([]byte, error) {
	return contents, nil
}

// Command pipes CSS through an external tool (postcss with autoprefixer by
// default). The browser list is handed over in BROWSERSLIST.
type Command struct {
	Command  string
	Browsers []string
	Dir      string
	Log      *slog.Logger
}

// A missing tool is reported once per process and then treated as a no-op.
var missingOnce sync.Map

func (c *Command) Transform(ctx context.Context, contents []byte) ([]byte, error) {
	parts := strings.Fields(c.Command)
	if len(parts) == 0 {
		return contents, nil
	}
	// #nosec G204
	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	cmd.Dir = c.Dir
	cmd.Stdin = bytes.NewReader(contents)
	cmd.Env = os.Environ()
	if len(c.Browsers) > 0 {
		cmd.Env = append(cmd.Env, "BROWSERSLIST="+strings.Join(c.Browsers, ", "))
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			if _, seen := missingOnce.LoadOrStore(parts[0], true); !seen {
				c.logger().Warn("auto prefixer not found, skipping prefixes", "command", c.Command)
			}
			return contents, nil
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", parts[0], err, msg)
		}
		return nil, fmt.Errorf("%s: %w", parts[0], err)
	}
	return stdout.Bytes(), nil
}

func (c *Command) logger() *slog.Logger {
	if c.Log != nil {
		return c.Log
	}
	return slog.Default()
}

// New picks the transformer the compiler config asks for.
func New(cfg config.Compiler, dir string, log *slog.Logger) Transformer {
	if cfg.DisableAutoPrefixer || strings.TrimSpace(cfg.AutoPrefixCommand) == "" {
		return Passthrough{}
	}
	return &Command{
		Command:  cfg.AutoPrefixCommand,
		Browsers: cfg.AutoPrefixBrowsersList,
		Dir:      dir,
		Log:      log,
	}
}
