// Package parser reads board seed files.
package parser

import (
	"context"
	"fmt"
	"os"
	"regexp"

	"github.com/hay-kot/criterio"
	"gopkg.in/yaml.v3"

	"github.com/robertguss/sprintboard-go/internal/domain"
	"github.com/robertguss/sprintboard-go/internal/storage"
)

// SeedFile represents the structure of a seed yaml file
type SeedFile struct {
	Projects []SeedProject `yaml:"projects"`
}

// SeedProject is one project with its backlog and sprints
type SeedProject struct {
	ID      string       `yaml:"id"`
	Name    string       `yaml:"name"`
	Backlog []SeedItem   `yaml:"backlog"`
	Sprints []SeedSprint `yaml:"sprints"`
}

// SeedSprint is a sprint and the items it holds
type SeedSprint struct {
	ID    string     `yaml:"id"`
	Name  string     `yaml:"name"`
	State string     `yaml:"state"`
	Items []SeedItem `yaml:"items"`
}

// SeedItem is a work item. Everything but id and status goes into the payload.
type SeedItem struct {
	ID       string `yaml:"id"`
	Key      string `yaml:"key"`
	Status   string `yaml:"status"`
	Title    string `yaml:"title"`
	Assignee string `yaml:"assignee"`
	Priority string `yaml:"priority"`
}

// Seed is a parsed project ready to be stored
type Seed struct {
	Project storage.Project
	Board   domain.BoardState
}

// itemKeyPattern matches tracker keys like "SB-12"
var itemKeyPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]*-\d+$`)

// ParseSeedFile reads and parses the seed file at path
func ParseSeedFile(path string) ([]Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSeed(data)
}

// ParseSeed parses seed yaml, validating ids, keys and sprint states
func ParseSeed(data []byte) ([]Seed, error) {
	var file SeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	if err := file.Validate(); err != nil {
		return nil, err
	}

	seeds := make([]Seed, 0, len(file.Projects))
	for _, p := range file.Projects {
		seeds = append(seeds, p.seed())
	}
	return seeds, nil
}

// Validate checks ids are present and unique and sprint states are known
func (f SeedFile) Validate() error {
	var errs criterio.FieldErrorsBuilder
	projects := make(map[string]bool)
	sprints := make(map[string]bool)
	items := make(map[string]bool)

	checkItem := func(field string, it SeedItem) {
		switch {
		case it.ID == "":
			errs = errs.Append(field+".id", fmt.Errorf("is required"))
		case items[it.ID]:
			errs = errs.Append(field+".id", fmt.Errorf("duplicate item id %q", it.ID))
		}
		items[it.ID] = true
		if it.Key != "" && !itemKeyPattern.MatchString(it.Key) {
			errs = errs.Append(field+".key", fmt.Errorf("invalid key %q", it.Key))
		}
	}

	for i, p := range f.Projects {
		field := fmt.Sprintf("projects[%d]", i)
		switch {
		case p.ID == "":
			errs = errs.Append(field+".id", fmt.Errorf("is required"))
		case projects[p.ID]:
			errs = errs.Append(field+".id", fmt.Errorf("duplicate project id %q", p.ID))
		}
		projects[p.ID] = true

		for j, it := range p.Backlog {
			checkItem(fmt.Sprintf("%s.backlog[%d]", field, j), it)
		}

		for j, s := range p.Sprints {
			sf := fmt.Sprintf("%s.sprints[%d]", field, j)
			switch {
			case s.ID == "":
				errs = errs.Append(sf+".id", fmt.Errorf("is required"))
			case sprints[s.ID]:
				errs = errs.Append(sf+".id", fmt.Errorf("duplicate sprint id %q", s.ID))
			}
			sprints[s.ID] = true

			if s.State != "" && !domain.LifecycleState(s.State).IsValid() {
				errs = errs.Append(sf+".state", fmt.Errorf("unknown state %q", s.State))
			}
			for k, it := range s.Items {
				checkItem(fmt.Sprintf("%s.items[%d]", sf, k), it)
			}
		}
	}

	return errs.ToError()
}

func (p SeedProject) seed() Seed {
	name := p.Name
	if name == "" {
		name = p.ID
	}

	board := domain.BoardState{
		ProjectID: p.ID,
		Backlog:   domain.Backlog{Items: make([]domain.WorkItem, 0, len(p.Backlog))},
		Sprints:   make([]domain.Sprint, 0, len(p.Sprints)),
	}
	for _, it := range p.Backlog {
		board.Backlog.Items = append(board.Backlog.Items, it.workItem(domain.StatusBacklog))
	}
	for _, s := range p.Sprints {
		state := domain.LifecycleState(s.State)
		if state == "" {
			state = domain.SprintPlanning
		}
		sprint := domain.Sprint{
			ID:    s.ID,
			Name:  s.Name,
			State: state,
			Items: make([]domain.WorkItem, 0, len(s.Items)),
		}
		if sprint.Name == "" {
			sprint.Name = s.ID
		}
		for _, it := range s.Items {
			sprint.Items = append(sprint.Items, it.workItem(domain.StatusTodo))
		}
		board.Sprints = append(board.Sprints, sprint)
	}

	return Seed{
		Project: storage.Project{ID: p.ID, Name: name},
		Board:   board,
	}
}

func (it SeedItem) workItem(defaultStatus string) domain.WorkItem {
	status := it.Status
	if status == "" {
		status = defaultStatus
	}

	payload := make(map[string]string)
	for k, v := range map[string]string{
		"key":      it.Key,
		"title":    it.Title,
		"assignee": it.Assignee,
		"priority": it.Priority,
	} {
		if v != "" {
			payload[k] = v
		}
	}
	if len(payload) == 0 {
		payload = nil
	}

	return domain.WorkItem{ID: it.ID, DisplayStatus: status, Payload: payload}
}

// Load writes every seed into the storage
func Load(ctx context.Context, s storage.Storage, seeds []Seed) error {
	for _, seed := range seeds {
		if err := s.SaveBoard(ctx, seed.Project, seed.Board); err != nil {
			return fmt.Errorf("seed project %s: %w", seed.Project.ID, err)
		}
	}
	return nil
}

// CountByStatus returns counts of items by display status across the board
func CountByStatus(board domain.BoardState) map[string]int {
	counts := make(map[string]int)
	for _, it := range board.Backlog.Items {
		counts[it.DisplayStatus]++
	}
	for _, s := range board.Sprints {
		for _, it := range s.Items {
			counts[it.DisplayStatus]++
		}
	}
	return counts
}
