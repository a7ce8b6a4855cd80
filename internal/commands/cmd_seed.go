package commands

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/robertguss/sprintboard-go/internal/parser"
	"github.com/robertguss/sprintboard-go/internal/storage"
)

// SeedCmd loads projects from a yaml file into storage
type SeedCmd struct {
	flags *Flags

	// flags
	dryRun bool
}

// NewSeedCmd creates a new seed command
func NewSeedCmd(flags *Flags) *SeedCmd {
	return &SeedCmd{flags: flags}
}

// Register adds the seed command to the application
func (cmd *SeedCmd) Register(root *cli.Command) *cli.Command {
	root.Commands = append(root.Commands, &cli.Command{
		Name:      "seed",
		Usage:     "Load projects, sprints and items from a yaml file",
		UsageText: "sprintboard seed FILE [--dry-run]",
		Description: `Validates the seed file and writes every project it contains to the
configured database. Existing projects with the same id are replaced.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "dry-run",
				Usage:       "validate and summarize without writing",
				Destination: &cmd.dryRun,
			},
		},
		Action: cmd.run,
	})
	return root
}

func (cmd *SeedCmd) run(ctx context.Context, c *cli.Command) error {
	path := c.Args().First()
	if path == "" {
		return fmt.Errorf("missing seed file. Usage: %s", c.UsageText)
	}

	seeds, err := parser.ParseSeedFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}

	for _, seed := range seeds {
		fmt.Fprintf(os.Stdout, "%s: %d sprints, %d items (%s)\n",
			seed.Project.ID, len(seed.Board.Sprints), seed.Board.ItemCount(), summarize(parser.CountByStatus(seed.Board)))
	}

	if cmd.dryRun {
		return nil
	}

	cfg := cmd.flags.Config
	st, err := storage.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer st.Close()

	if err := parser.Load(ctx, st, seeds); err != nil {
		return err
	}

	cmd.flags.Logger.Info().Int("projects", len(seeds)).Str("file", path).Msg("seed loaded")
	return nil
}

func summarize(counts map[string]int) string {
	statuses := make([]string, 0, len(counts))
	for status := range counts {
		statuses = append(statuses, status)
	}
	slices.Sort(statuses)

	parts := make([]string, len(statuses))
	for i, status := range statuses {
		parts[i] = fmt.Sprintf("%s=%d", status, counts[status])
	}
	return strings.Join(parts, " ")
}
