package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v3"

	"github.com/robertguss/sprintboard-go/internal/preflight"
	"github.com/robertguss/sprintboard-go/internal/theme"
)

// ErrChecksFailed is returned when a blocking check fails
var ErrChecksFailed = errors.New("pre-flight checks failed")

// DoctorCmd verifies the board can reach its data
type DoctorCmd struct {
	flags *Flags
}

// NewDoctorCmd creates a new doctor command
func NewDoctorCmd(flags *Flags) *DoctorCmd {
	return &DoctorCmd{flags: flags}
}

// Register adds the doctor command to the application
func (cmd *DoctorCmd) Register(root *cli.Command) *cli.Command {
	root.Commands = append(root.Commands, &cli.Command{
		Name:      "doctor",
		Usage:     "Check storage, server and project access",
		UsageText: "sprintboard doctor",
		Action:    cmd.run,
	})
	return root
}

func (cmd *DoctorCmd) run(ctx context.Context, _ *cli.Command) error {
	results := preflight.RunAll(ctx, cmd.flags.Config)
	WriteChecks(os.Stdout, results)
	if !results.AllPass {
		return ErrChecksFailed
	}
	return nil
}

// WriteChecks prints one line per check
func WriteChecks(w io.Writer, results *preflight.Results) {
	t := theme.Current
	ok := lipgloss.NewStyle().Foreground(t.Success).Render("✓")
	warn := lipgloss.NewStyle().Foreground(t.Warning).Render("!")
	fail := lipgloss.NewStyle().Foreground(t.Error).Render("✗")

	for _, check := range results.Checks {
		switch {
		case check.Passed:
			fmt.Fprintf(w, "%s %s: %s\n", ok, check.Name, check.Message)
		case check.Warning:
			fmt.Fprintf(w, "%s %s: %s\n", warn, check.Name, check.Error)
		default:
			fmt.Fprintf(w, "%s %s: %s\n", fail, check.Name, check.Error)
		}
	}
	fmt.Fprintf(w, "%d/%d checks passed\n", results.PassedCount(), len(results.Checks))
}
