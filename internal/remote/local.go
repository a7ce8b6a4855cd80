package remote

import (
	"context"
	"errors"

	"github.com/robertguss/sprintboard-go/internal/domain"
	"github.com/robertguss/sprintboard-go/internal/storage"
)

// LocalClient serves the move engine straight from a storage backend,
// for single-process use without the REST server.
type LocalClient struct {
	storage    storage.Storage
	onMutation func(storage.Mutation)
}

// NewLocalClient creates a client over the given storage
func NewLocalClient(s storage.Storage) *LocalClient {
	return &LocalClient{storage: s}
}

// OnMutation registers a callback invoked after every successful write
func (c *LocalClient) OnMutation(fn func(storage.Mutation)) {
	c.onMutation = fn
}

// GetContainerStatus reads a sprint's lifecycle state
func (c *LocalClient) GetContainerStatus(ctx context.Context, sprintID string) (domain.LifecycleState, error) {
	state, err := c.storage.SprintState(ctx, sprintID)
	if err != nil {
		return "", wrapStorageError(OpGetStatus, err)
	}
	return state, nil
}

// AddItemToContainer associates an item with a sprint
func (c *LocalClient) AddItemToContainer(ctx context.Context, sprintID, itemID, status string) error {
	m, err := c.storage.AddItemToSprint(ctx, sprintID, itemID, status)
	if err != nil {
		return wrapStorageError(OpAddItem, err)
	}
	c.publish(m)
	return nil
}

// RemoveItemFromContainer disassociates an item from a sprint
func (c *LocalClient) RemoveItemFromContainer(ctx context.Context, sprintID, itemID string, keepStatus bool) error {
	m, err := c.storage.RemoveItemFromSprint(ctx, sprintID, itemID, keepStatus)
	if err != nil {
		return wrapStorageError(OpRemove, err)
	}
	c.publish(m)
	return nil
}

// RefetchContainers loads the authoritative board of a project
func (c *LocalClient) RefetchContainers(ctx context.Context, projectID string) (domain.BoardState, error) {
	board, err := c.storage.LoadBoard(ctx, projectID)
	if err != nil {
		return domain.BoardState{}, wrapStorageError(OpRefetch, err)
	}
	return board, nil
}

func (c *LocalClient) publish(m *storage.Mutation) {
	if c.onMutation != nil && m != nil {
		c.onMutation(*m)
	}
}

func wrapStorageError(op string, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return &Error{Op: op, Message: err.Error(), Err: ErrNotFound}
	case errors.Is(err, storage.ErrSprintClosed):
		return &Error{Op: op, Message: err.Error(), Err: ErrClosed}
	case errors.Is(err, storage.ErrItemNotInSprint):
		return &Error{Op: op, Message: err.Error(), Err: ErrNotInContainer}
	default:
		return &Error{Op: op, Err: err}
	}
}
