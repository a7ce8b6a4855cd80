// Package notify turns move outcomes into user-facing messages.
package notify

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/robertguss/sprintboard-go/internal/domain"
)

const notifyTimeout = 5 * time.Second

// Notifier raises desktop notifications for moves the backend undid
type Notifier struct {
	enabled bool
	goos    string
	run     func(*exec.Cmd) error
}

// New creates a notifier for the current platform
func New(enabled bool) *Notifier {
	return &Notifier{
		enabled: enabled,
		goos:    runtime.GOOS,
		run:     (*exec.Cmd).Run,
	}
}

// Handles reports whether NotifyMoveOutcome raises a desktop notification
// for o. Callers show every other outcome themselves.
func (n *Notifier) Handles(o domain.MoveOutcome) bool {
	return n.enabled && o.Kind == domain.OutcomeRolledBack && supported(n.goos)
}

// NotifyMoveOutcome raises a desktop notification for moves that were
// undone. Other outcomes are shown in the board itself.
func (n *Notifier) NotifyMoveOutcome(o domain.MoveOutcome) error {
	if !n.Handles(o) {
		return nil
	}
	toast, _ := ToastFor(o)

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	cmd := notifyCommand(ctx, n.goos, "Move rolled back", toast.Message)
	if cmd == nil {
		return nil
	}
	return n.run(cmd)
}

func supported(goos string) bool {
	return goos == "darwin" || goos == "linux"
}

// notifyCommand builds the platform notifier invocation, or nil where
// none is available.
func notifyCommand(ctx context.Context, goos, title, message string) *exec.Cmd {
	switch goos {
	case "darwin":
		script := fmt.Sprintf(`display notification %q with title %q`,
			strings.ReplaceAll(message, `"`, `'`), strings.ReplaceAll(title, `"`, `'`))
		return exec.CommandContext(ctx, "osascript", "-e", script)
	case "linux":
		return exec.CommandContext(ctx, "notify-send", "--app-name=sprintboard", title, message)
	}
	return nil
}
