package process

import (
	"os/exec"
	"strings"

	"github.com/personaplex/warden/internal/logger"
)

// Spec describes the server process to be launched. Args are passed as-is
// without shell interpretation; Env entries are layered on top of the
// environment the caller merges in at launch time.
type Spec struct {
	Name    string        `json:"name"`
	Path    string        `json:"path"`     // executable path
	Args    []string      `json:"args"`     // fixed argument list
	WorkDir string        `json:"work_dir"` // optional working dir
	Env     []string      `json:"env"`      // optional extra env (KEY=VALUE)
	Log     logger.Config `json:"log"`      // captured output destination
}

// BuildCommand constructs an *exec.Cmd for the spec. The server command is
// always executed directly; no shell is involved.
func (s *Spec) BuildCommand() *exec.Cmd {
	// #nosec G204 -- path and args come from operator configuration
	return exec.Command(s.Path, s.Args...)
}

// CommandLine renders the full command for log messages.
func (s *Spec) CommandLine() string {
	return strings.Join(append([]string{s.Path}, s.Args...), " ")
}
