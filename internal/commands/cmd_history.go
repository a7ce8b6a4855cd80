package commands

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/robertguss/sprintboard-go/internal/domain"
	"github.com/robertguss/sprintboard-go/internal/storage"
	"github.com/robertguss/sprintboard-go/internal/util"
)

// HistoryCmd lists recorded move attempts
type HistoryCmd struct {
	flags *Flags

	// flags
	outcome string
	limit   int
	stats   bool
}

// NewHistoryCmd creates a new history command
func NewHistoryCmd(flags *Flags) *HistoryCmd {
	return &HistoryCmd{flags: flags}
}

// Register adds the history command to the application
func (cmd *HistoryCmd) Register(root *cli.Command) *cli.Command {
	root.Commands = append(root.Commands, &cli.Command{
		Name:      "history",
		Usage:     "List recorded moves of the project",
		UsageText: "sprintboard history [--outcome applied|rolled_back|rejected] [--limit N] [--stats]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "outcome",
				Usage:       "only show moves with this outcome",
				Destination: &cmd.outcome,
			},
			&cli.IntFlag{
				Name:        "limit",
				Usage:       "maximum number of moves to show",
				Value:       20,
				Destination: &cmd.limit,
			},
			&cli.BoolFlag{
				Name:        "stats",
				Usage:       "show totals instead of individual moves",
				Destination: &cmd.stats,
			},
		},
		Action: cmd.run,
	})
	return root
}

func (cmd *HistoryCmd) run(ctx context.Context, _ *cli.Command) error {
	cfg := cmd.flags.Config
	if cfg.Board.ProjectID == "" {
		return ErrNoProject
	}

	st, err := storage.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer st.Close()

	if cmd.stats {
		stats, err := st.GetMoveStats(ctx, cfg.Board.ProjectID)
		if err != nil {
			return fmt.Errorf("move stats: %w", err)
		}
		return WriteStats(os.Stdout, stats)
	}

	records, err := st.ListMoveRecords(ctx, &storage.MoveFilter{
		ProjectID: cfg.Board.ProjectID,
		Outcome:   domain.OutcomeKind(cmd.outcome),
		Limit:     cmd.limit,
	})
	if err != nil {
		return fmt.Errorf("list moves: %w", err)
	}

	if len(records) == 0 {
		fmt.Fprintln(os.Stderr, "No moves recorded")
		return nil
	}
	return WriteHistory(os.Stdout, records)
}

// WriteHistory prints move records as a table
func WriteHistory(w io.Writer, records []*storage.MoveRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tITEM\tFROM\tTO\tOUTCOME\tREASON\tTOOK")
	now := time.Now()
	for _, rec := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			util.FormatAge(rec.CreatedAt, now),
			rec.ItemID, rec.From, rec.To, rec.Outcome, rec.Reason,
			util.FormatDurationCompact(rec.Duration))
	}
	return tw.Flush()
}

// WriteStats prints move totals and the reasons behind failed moves
func WriteStats(w io.Writer, stats *storage.MoveStats) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Total\t%d\n", stats.Total)
	fmt.Fprintf(tw, "Applied\t%d\n", stats.Applied)
	fmt.Fprintf(tw, "Rolled back\t%d\n", stats.RolledBack)
	fmt.Fprintf(tw, "Rejected\t%d\n", stats.Rejected)
	fmt.Fprintf(tw, "Average\t%s\n", util.FormatDurationCompact(stats.AvgDuration))
	fmt.Fprintf(tw, "Success rate\t%.1f%%\n", stats.SuccessRate)
	for _, reason := range slices.Sorted(maps.Keys(stats.ByReason)) {
		fmt.Fprintf(tw, "  %s\t%d\n", reason, stats.ByReason[reason])
	}
	return tw.Flush()
}
