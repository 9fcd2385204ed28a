// Package target holds the pure path rules shared by the registry and the
// minification pipeline.
package target

import (
	"path/filepath"
	"strings"

	"github.com/loykin/sasswatch/internal/config"
)

const CSSExtension = ".css"

// Resolve turns p into an absolute, cleaned path. Relative paths are taken
// relative to base.
func Resolve(base, p string) string {
	if !filepath.IsAbs(p) {
		p = filepath.Join(base, p)
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

func IsCSSFile(p string) bool {
	return filepath.Ext(p) == CSSExtension
}

// IsMinCSS reports whether p is already a minified artifact.
func IsMinCSS(p, minExt string) bool {
	return minExt != "" && strings.HasSuffix(p, minExt)
}

// MinCSSPath is the sibling path a minified copy of p is written to.
func MinCSSPath(p, minExt string) string {
	return strings.TrimSuffix(p, CSSExtension) + minExt
}

// WatchTargetDirectory is the directory the compiler writes into for
// sourceDir: the configured target directory, or sourceDir itself.
func WatchTargetDirectory(sourceDir string, cfg config.Compiler) string {
	if cfg.TargetDirectory != "" {
		return cfg.TargetDirectory
	}
	return sourceDir
}
