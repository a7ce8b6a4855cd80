package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/robertguss/sprintboard-go/internal/domain"
	"github.com/robertguss/sprintboard-go/internal/storage"
)

// HTTPClient talks to the sprintboard REST API
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient creates a client for the server at baseURL
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// GetContainerStatus reads a sprint's lifecycle state
func (c *HTTPClient) GetContainerStatus(ctx context.Context, sprintID string) (domain.LifecycleState, error) {
	var resp StatusResponse
	path := "/api/sprints/" + url.PathEscape(sprintID) + "/status"
	if err := c.do(ctx, OpGetStatus, http.MethodGet, path, nil, &resp); err != nil {
		return "", err
	}
	return resp.LifecycleState, nil
}

// AddItemToContainer associates an item with a sprint. A non-empty status
// is applied to the item.
func (c *HTTPClient) AddItemToContainer(ctx context.Context, sprintID, itemID, status string) error {
	path := itemPath(sprintID, itemID)
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	return c.do(ctx, OpAddItem, http.MethodPost, path, nil, nil)
}

// RemoveItemFromContainer disassociates an item from a sprint
func (c *HTTPClient) RemoveItemFromContainer(ctx context.Context, sprintID, itemID string, keepStatus bool) error {
	path := itemPath(sprintID, itemID)
	if keepStatus {
		path += "?keep_status=true"
	}
	return c.do(ctx, OpRemove, http.MethodDelete, path, nil, nil)
}

// RefetchContainers loads the authoritative board of a project
func (c *HTTPClient) RefetchContainers(ctx context.Context, projectID string) (domain.BoardState, error) {
	var board domain.BoardState
	path := "/api/projects/" + url.PathEscape(projectID) + "/board"
	if err := c.do(ctx, OpRefetch, http.MethodGet, path, nil, &board); err != nil {
		return domain.BoardState{}, err
	}
	return board, nil
}

// SaveMoveRecord posts a move outcome to the server's history
func (c *HTTPClient) SaveMoveRecord(ctx context.Context, rec *storage.MoveRecord) error {
	return c.do(ctx, OpRecordMove, http.MethodPost, "/api/moves", NewMoveRecord(rec), nil)
}

func itemPath(sprintID, itemID string) string {
	return "/api/sprints/" + url.PathEscape(sprintID) + "/items/" + url.PathEscape(itemID)
}

func (c *HTTPClient) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &Error{Op: op, Err: fmt.Errorf("failed to encode request: %w", err)}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(op, resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

func decodeError(op string, resp *http.Response) error {
	var body ErrorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &body); err != nil {
		body.Error = strings.TrimSpace(string(data))
	}

	e := &Error{Op: op, StatusCode: resp.StatusCode, Message: body.Error}
	switch {
	case body.Code == CodeSprintClosed:
		e.Err = ErrClosed
	case body.Code == CodeNotInContainer:
		e.Err = ErrNotInContainer
	case body.Code == CodeNotFound, resp.StatusCode == http.StatusNotFound:
		e.Err = ErrNotFound
	default:
		e.Err = errors.New(http.StatusText(resp.StatusCode))
	}
	return e
}
