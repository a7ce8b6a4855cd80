package domain

import (
	"fmt"
	"maps"
	"slices"
)

// LifecycleState represents the lifecycle of a sprint
type LifecycleState string

const (
	SprintPlanning  LifecycleState = "planning"
	SprintActive    LifecycleState = "active"
	SprintCompleted LifecycleState = "completed"
	SprintCancelled LifecycleState = "cancelled"
)

// AllLifecycleStates returns every known sprint lifecycle state
func AllLifecycleStates() []LifecycleState {
	return []LifecycleState{
		SprintPlanning,
		SprintActive,
		SprintCompleted,
		SprintCancelled,
	}
}

// IsValid returns true if the state is one of the known lifecycle states
func (s LifecycleState) IsValid() bool {
	return slices.Contains(AllLifecycleStates(), s)
}

// IsClosed returns true if the sprint no longer accepts new items
func (s LifecycleState) IsClosed() bool {
	return s == SprintCompleted || s == SprintCancelled
}

// Item status values the core relies on. Every other status is opaque.
const (
	StatusBacklog = "backlog"
	StatusTodo    = "todo"
)

// WorkItem is an issue that lives in exactly one container at a time
type WorkItem struct {
	ID            string            `json:"id"`
	DisplayStatus string            `json:"display_status"`
	Payload       map[string]string `json:"payload,omitempty"` // title, assignee, priority; not interpreted
}

// Title returns the payload title, falling back to the ID
func (w WorkItem) Title() string {
	if t := w.Payload["title"]; t != "" {
		return t
	}
	return w.ID
}

// Clone returns a deep copy of the item
func (w WorkItem) Clone() WorkItem {
	w.Payload = maps.Clone(w.Payload)
	return w
}

// Sprint is a time-boxed container with a lifecycle
type Sprint struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	State LifecycleState `json:"state"`
	Items []WorkItem     `json:"items"`
}

// Backlog is the project's singleton container without a lifecycle
type Backlog struct {
	Items []WorkItem `json:"items"`
}

// ContainerRef identifies a container. The zero value is the Backlog.
type ContainerRef struct {
	SprintID string `json:"sprint_id,omitempty"`
}

// BacklogRef refers to the project backlog
var BacklogRef = ContainerRef{}

// SprintRef returns a reference to the sprint with the given ID
func SprintRef(id string) ContainerRef {
	return ContainerRef{SprintID: id}
}

// IsBacklog returns true if the reference points to the backlog
func (r ContainerRef) IsBacklog() bool {
	return r.SprintID == ""
}

func (r ContainerRef) String() string {
	if r.IsBacklog() {
		return "backlog"
	}
	return "sprint:" + r.SprintID
}

// BoardState is the full container/item picture of one project
type BoardState struct {
	ProjectID string   `json:"project_id"`
	Backlog   Backlog  `json:"backlog"`
	Sprints   []Sprint `json:"sprints"`
}

// Clone returns a deep copy of the board so snapshots never alias live slices
func (b BoardState) Clone() BoardState {
	out := BoardState{
		ProjectID: b.ProjectID,
		Backlog:   Backlog{Items: cloneItems(b.Backlog.Items)},
	}
	if b.Sprints != nil {
		out.Sprints = make([]Sprint, len(b.Sprints))
		for i, s := range b.Sprints {
			s.Items = cloneItems(s.Items)
			out.Sprints[i] = s
		}
	}
	return out
}

func cloneItems(items []WorkItem) []WorkItem {
	if items == nil {
		return nil
	}
	out := make([]WorkItem, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}

// Sprint returns the sprint with the given ID, or nil
func (b *BoardState) Sprint(id string) *Sprint {
	for i := range b.Sprints {
		if b.Sprints[i].ID == id {
			return &b.Sprints[i]
		}
	}
	return nil
}

// Items returns the item list of a container, or nil if the sprint is unknown
func (b *BoardState) Items(ref ContainerRef) *[]WorkItem {
	if ref.IsBacklog() {
		return &b.Backlog.Items
	}
	if s := b.Sprint(ref.SprintID); s != nil {
		return &s.Items
	}
	return nil
}

// FindContainerOf returns the container holding the item. It scans every
// container, which is fine for the tens of sprints a project has.
func (b BoardState) FindContainerOf(itemID string) (ContainerRef, bool) {
	if indexOf(b.Backlog.Items, itemID) >= 0 {
		return BacklogRef, true
	}
	for _, s := range b.Sprints {
		if indexOf(s.Items, itemID) >= 0 {
			return SprintRef(s.ID), true
		}
	}
	return ContainerRef{}, false
}

// Item returns the item with the given ID and its container
func (b BoardState) Item(itemID string) (WorkItem, ContainerRef, bool) {
	if i := indexOf(b.Backlog.Items, itemID); i >= 0 {
		return b.Backlog.Items[i], BacklogRef, true
	}
	for _, s := range b.Sprints {
		if i := indexOf(s.Items, itemID); i >= 0 {
			return s.Items[i], SprintRef(s.ID), true
		}
	}
	return WorkItem{}, ContainerRef{}, false
}

// ItemCount returns the total number of items across all containers
func (b BoardState) ItemCount() int {
	n := len(b.Backlog.Items)
	for _, s := range b.Sprints {
		n += len(s.Items)
	}
	return n
}

// CheckContainment verifies that every item appears in exactly one container
func (b BoardState) CheckContainment() error {
	seen := make(map[string]ContainerRef)
	check := func(ref ContainerRef, items []WorkItem) error {
		for _, it := range items {
			if prev, ok := seen[it.ID]; ok {
				return fmt.Errorf("item %s appears in both %s and %s", it.ID, prev, ref)
			}
			seen[it.ID] = ref
		}
		return nil
	}
	if err := check(BacklogRef, b.Backlog.Items); err != nil {
		return err
	}
	for _, s := range b.Sprints {
		if err := check(SprintRef(s.ID), s.Items); err != nil {
			return err
		}
	}
	return nil
}

// Equal reports whether two boards are structurally identical
func (b BoardState) Equal(other BoardState) bool {
	if b.ProjectID != other.ProjectID || len(b.Sprints) != len(other.Sprints) {
		return false
	}
	if !itemsEqual(b.Backlog.Items, other.Backlog.Items) {
		return false
	}
	for i := range b.Sprints {
		x, y := b.Sprints[i], other.Sprints[i]
		if x.ID != y.ID || x.Name != y.Name || x.State != y.State || !itemsEqual(x.Items, y.Items) {
			return false
		}
	}
	return true
}

func itemsEqual(a, b []WorkItem) bool {
	return slices.EqualFunc(a, b, func(x, y WorkItem) bool {
		return x.ID == y.ID && x.DisplayStatus == y.DisplayStatus && maps.Equal(x.Payload, y.Payload)
	})
}

func indexOf(items []WorkItem, itemID string) int {
	return slices.IndexFunc(items, func(it WorkItem) bool { return it.ID == itemID })
}
