// Package hook runs user-configured commands in response to download
// events, in the spirit of a torrent client's script-on-done setting. The
// daemon fires the finished hook once per newly completed download; the
// popup uses the browser helper to jump to the server's web interface.
package hook

import (
	"log/slog"
	"os/exec"
	"runtime"
	"strings"

	"pyloadwatch/internal/domain"
)

// Runner executes the configured finished-download command. Placeholders in
// the argument list are substituted per task: {name}, {id} and {url}.
type Runner struct {
	command string
	args    []string
	logger  *slog.Logger
}

// NewRunner creates a hook runner. An empty command disables the hook.
func NewRunner(command string, args []string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{command: command, args: args, logger: logger}
}

// Enabled reports whether a command is configured.
func (r *Runner) Enabled() bool {
	return r.command != ""
}

// Finished runs the hook for each newly completed download. Launches are
// asynchronous and best-effort; a missing binary or a failed start is logged
// and never propagated into the poll cycle.
func (r *Runner) Finished(tasks []domain.Task) {
	if !r.Enabled() || len(tasks) == 0 {
		return
	}
	if _, err := exec.LookPath(r.command); err != nil {
		r.logger.Warn("finished hook command not found", "command", r.command, "error", err)
		return
	}

	for _, task := range tasks {
		args := r.expandArgs(task)
		r.logger.Info("running finished hook", "command", r.command, "task", task.Name)
		if err := exec.Command(r.command, args...).Start(); err != nil {
			r.logger.Warn("finished hook failed to start", "command", r.command, "error", err)
		}
	}
}

// expandArgs substitutes the per-task placeholders. With no arguments
// configured the task name is passed as the single argument.
func (r *Runner) expandArgs(task domain.Task) []string {
	if len(r.args) == 0 {
		return []string{task.Name}
	}
	replacer := strings.NewReplacer(
		"{name}", task.Name,
		"{id}", task.ID,
		"{url}", task.URL,
	)
	args := make([]string, len(r.args))
	for i, arg := range r.args {
		args[i] = replacer.Replace(arg)
	}
	return args
}

// OpenBrowser opens url with the platform's default handler.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", "", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
