package orchestrator

import (
	"context"
	"errors"

	"github.com/robertguss/sprintboard-go/internal/domain"
	"github.com/robertguss/sprintboard-go/internal/metrics"
	"github.com/robertguss/sprintboard-go/internal/remote"
)

// instrumentedClient counts every remote call
type instrumentedClient struct {
	remote.Client
	metrics *metrics.Metrics
}

func (c instrumentedClient) GetContainerStatus(ctx context.Context, sprintID string) (domain.LifecycleState, error) {
	state, err := c.Client.GetContainerStatus(ctx, sprintID)
	c.metrics.ObserveRemoteCall(remote.OpGetStatus, err)
	return state, err
}

func (c instrumentedClient) AddItemToContainer(ctx context.Context, sprintID, itemID, status string) error {
	err := c.Client.AddItemToContainer(ctx, sprintID, itemID, status)
	c.metrics.ObserveRemoteCall(remote.OpAddItem, err)
	return err
}

func (c instrumentedClient) RemoveItemFromContainer(ctx context.Context, sprintID, itemID string, keepStatus bool) error {
	err := c.Client.RemoveItemFromContainer(ctx, sprintID, itemID, keepStatus)
	c.metrics.ObserveRemoteCall(remote.OpRemove, err)
	return err
}

// persist issues the remote calls a move implies. status is the display
// status the optimistic move gave the item. Sprint to sprint moves attempt
// both calls even when the first fails.
func (o *Orchestrator) persist(ctx context.Context, req domain.MoveRequest, status string) error {
	itemID := req.Item.ID

	switch req.Kind() {
	case domain.MoveBacklogToSprint:
		return o.client.AddItemToContainer(ctx, req.To.SprintID, itemID, status)

	case domain.MoveSprintToBacklog:
		return o.client.RemoveItemFromContainer(ctx, req.From.SprintID, itemID, false)

	case domain.MoveSprintToSprint:
		removeErr := o.client.RemoveItemFromContainer(ctx, req.From.SprintID, itemID, true)
		addErr := o.client.AddItemToContainer(ctx, req.To.SprintID, itemID, status)
		if (removeErr == nil) != (addErr == nil) {
			o.log.Warn().
				Str("item", itemID).
				AnErr("remove_err", removeErr).
				AnErr("add_err", addErr).
				Msg("partial remote failure, backend state left for reconciliation")
		}
		return errors.Join(removeErr, addErr)
	}

	return nil
}
