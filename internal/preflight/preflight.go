// Package preflight checks that the board can reach its data before it starts.
package preflight

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/robertguss/sprintboard-go/internal/config"
	"github.com/robertguss/sprintboard-go/internal/remote"
	"github.com/robertguss/sprintboard-go/internal/storage"
)

// Check names
const (
	CheckDataDir  = "Data Directory"
	CheckDatabase = "Database"
	CheckServer   = "API Server"
	CheckProject  = "Project"
)

// CheckResult represents the result of a single pre-flight check
type CheckResult struct {
	Name    string
	Passed  bool
	Warning bool // a failed warning does not block startup
	Message string
	Error   string
}

// Results holds all pre-flight check results
type Results struct {
	Checks  []CheckResult
	AllPass bool
}

// RunAll executes all pre-flight checks for the configured mode
func RunAll(ctx context.Context, cfg *config.Config) *Results {
	results := &Results{
		Checks:  make([]CheckResult, 0),
		AllPass: true,
	}

	var client remote.Client
	if cfg.LocalMode() {
		results.addCheck(checkDataDir(cfg))

		st, check := checkDatabase(ctx, cfg)
		results.addCheck(check)
		if st != nil {
			defer st.Close()
			client = remote.NewLocalClient(st)
		}
	} else {
		check := checkServer(ctx, cfg)
		results.addCheck(check)
		if check.Passed {
			client = remote.NewHTTPClient(cfg.Board.ServerURL, cfg.Server.APIKey, cfg.Remote.Timeout)
		}
	}

	if client != nil {
		results.addCheck(checkProject(ctx, cfg, client))
	}

	return results
}

// addCheck adds a check result and updates AllPass
func (r *Results) addCheck(check CheckResult) {
	r.Checks = append(r.Checks, check)
	if !check.Passed && !check.Warning {
		r.AllPass = false
	}
}

// PassedCount returns the number of passed checks
func (r *Results) PassedCount() int {
	count := 0
	for _, check := range r.Checks {
		if check.Passed {
			count++
		}
	}
	return count
}

// FailedChecks returns only the failed checks
func (r *Results) FailedChecks() []CheckResult {
	failed := make([]CheckResult, 0)
	for _, check := range r.Checks {
		if !check.Passed {
			failed = append(failed, check)
		}
	}
	return failed
}

// checkDataDir verifies the data directory exists or can be created
func checkDataDir(cfg *config.Config) CheckResult {
	result := CheckResult{Name: CheckDataDir}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		result.Error = fmt.Sprintf("Cannot create %s: %v", cfg.DataDir, err)
		return result
	}

	result.Passed = true
	result.Message = cfg.DataDir
	return result
}

// checkDatabase opens the configured database. The caller closes the
// returned storage.
func checkDatabase(ctx context.Context, cfg *config.Config) (*storage.SQLStorage, CheckResult) {
	result := CheckResult{Name: CheckDatabase}

	st, err := storage.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		result.Error = err.Error()
		return nil, result
	}

	projects, err := st.ListProjects(ctx)
	if err != nil {
		st.Close()
		result.Error = err.Error()
		return nil, result
	}

	result.Passed = true
	result.Message = fmt.Sprintf("%s, %d projects", cfg.Database.Driver, len(projects))
	return st, result
}

// checkServer verifies the API server answers its health endpoint
func checkServer(ctx context.Context, cfg *config.Config) CheckResult {
	result := CheckResult{Name: CheckServer}

	ctx, cancel := context.WithTimeout(ctx, cfg.Remote.Timeout)
	defer cancel()

	url := strings.TrimRight(cfg.Board.ServerURL, "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		result.Error = fmt.Sprintf("Unreachable: %v", err)
		return result
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		result.Error = fmt.Sprintf("Health check returned %s", resp.Status)
		return result
	}

	result.Passed = true
	result.Message = cfg.Board.ServerURL
	return result
}

// checkProject verifies the configured project can be loaded. A missing
// project id is only a warning since commands like seed do not need one.
func checkProject(ctx context.Context, cfg *config.Config, client remote.Client) CheckResult {
	result := CheckResult{Name: CheckProject}

	if cfg.Board.ProjectID == "" {
		result.Warning = true
		result.Error = "No project configured"
		return result
	}

	board, err := client.RefetchContainers(ctx, cfg.Board.ProjectID)
	if err != nil {
		result.Error = fmt.Sprintf("Cannot load %s: %v", cfg.Board.ProjectID, err)
		return result
	}

	result.Passed = true
	result.Message = fmt.Sprintf("%s: %d sprints, %d items", cfg.Board.ProjectID, len(board.Sprints), board.ItemCount())
	return result
}
