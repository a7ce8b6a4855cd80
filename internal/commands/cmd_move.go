package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/robertguss/sprintboard-go/internal/domain"
	"github.com/robertguss/sprintboard-go/internal/notify"
)

// BacklogTarget is the --to value naming the Backlog
const BacklogTarget = "backlog"

// MoveCmd relocates a single item from the command line
type MoveCmd struct {
	flags *Flags

	// flags
	to     string
	status string
}

// NewMoveCmd creates a new move command
func NewMoveCmd(flags *Flags) *MoveCmd {
	return &MoveCmd{flags: flags}
}

// Register adds the move command to the application
func (cmd *MoveCmd) Register(root *cli.Command) *cli.Command {
	root.Commands = append(root.Commands, &cli.Command{
		Name:      "move",
		Usage:     "Move an item to a sprint or back to the backlog",
		UsageText: "sprintboard move ITEM --to SPRINT|backlog [--status STATUS]",
		Description: `Runs one move through the same engine as the board: the destination
sprint is checked, the server is updated and the board is refreshed.

Exits non-zero when the move is rejected or rolled back.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "to",
				Usage:       "destination sprint id, or 'backlog'",
				Required:    true,
				Destination: &cmd.to,
			},
			&cli.StringFlag{
				Name:        "status",
				Usage:       "status to give the item when it lands in a sprint",
				Destination: &cmd.status,
			},
		},
		Action: cmd.run,
	})
	return root
}

func (cmd *MoveCmd) run(ctx context.Context, c *cli.Command) error {
	itemID := c.Args().First()
	if itemID == "" {
		return fmt.Errorf("missing item id. Usage: %s", c.UsageText)
	}

	log := cmd.flags.Logger.With().Str("command", "move").Logger()
	engine, err := NewEngine(ctx, cmd.flags.Config, log, EngineOptions{})
	if err != nil {
		return err
	}
	defer engine.Close()

	board := engine.Store.State()
	req, err := BuildMoveRequest(&board, itemID, cmd.to, cmd.status)
	if err != nil {
		return err
	}

	outcome := engine.Orchestrator.SubmitMove(ctx, req)
	log.Info().Str("move_id", outcome.MoveID).Str("outcome", outcome.String()).Msg("move finished")

	if toast, ok := notify.ToastFor(outcome); ok {
		fmt.Fprintln(os.Stdout, toast.Message)
	}
	if outcome.Succeeded() || outcome.IsNoop() {
		return nil
	}
	return fmt.Errorf("move %s", outcome)
}

// BuildMoveRequest resolves an item id and destination name against board
func BuildMoveRequest(board *domain.BoardState, itemID, to, status string) (domain.MoveRequest, error) {
	item, from, ok := board.Item(itemID)
	if !ok {
		return domain.MoveRequest{}, fmt.Errorf("item %s not found in project %s", itemID, board.ProjectID)
	}

	dest := domain.BacklogRef
	if to != BacklogTarget {
		dest = domain.SprintRef(to)
	}

	return domain.MoveRequest{
		Item:      item,
		From:      from,
		To:        dest,
		NewStatus: status,
	}, nil
}
