package process

import (
	"os/exec"
	"strings"

	"github.com/loykin/sasswatch/internal/config"
	"github.com/loykin/sasswatch/internal/target"
)

// WatchRequest describes one long-running compile watch.
type WatchRequest struct {
	SourceDir   string // absolute
	ProjectRoot string
	Compressed  bool
	Config      config.Compiler
}

// TargetDir is where the compiler writes CSS for the request.
func (r WatchRequest) TargetDir() string {
	return target.Resolve(r.ProjectRoot, target.WatchTargetDirectory(r.SourceDir, r.Config))
}

// Args returns the compiler argument list, without the binary itself.
func (r WatchRequest) Args() []string {
	args := []string{"--watch"}
	if r.Compressed {
		args = append(args, "--style=compressed")
	}
	if r.Config.DisableSourceMap {
		args = append(args, "--no-source-map")
	}
	for _, p := range r.Config.IncludePath {
		if strings.TrimSpace(p) == "" {
			continue
		}
		args = append(args, "--load-path="+target.Resolve(r.ProjectRoot, p))
	}
	return append(args, r.SourceDir+":"+r.TargetDir())
}

// BuildCommand constructs the compiler invocation. sass_bin_path may carry
// leading arguments of its own (e.g. "npx sass").
func BuildCommand(r WatchRequest) *exec.Cmd {
	parts := strings.Fields(r.Config.SassBinPath)
	if len(parts) == 0 {
		parts = []string{config.DefaultSassBinPath}
	}
	args := append(parts[1:len(parts):len(parts)], r.Args()...)
	// #nosec G204
	cmd := exec.Command(parts[0], args...)
	cmd.Dir = r.ProjectRoot
	configureSysProcAttr(cmd)
	return cmd
}
