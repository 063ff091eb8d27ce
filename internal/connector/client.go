// Package connector is a typed client over the dispatcher for the
// remote management catalog. Methods pluck the well-known fields out of
// the pass-through JSON; open-ended results (SQL, logs, docs GraphQL)
// come back raw.
package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/mattjoyce/supactl/internal/jval"
	"github.com/mattjoyce/supactl/internal/log"
)

// Client wraps an Invoker with one method per remote operation.
type Client struct {
	inv    Invoker
	logger *slog.Logger
}

// New creates a Client.
func New(inv Invoker) *Client {
	return &Client{inv: inv, logger: log.WithComponent("connector")}
}

// call routes each typed method through the invoker with logging.
func (c *Client) call(ctx context.Context, operation string, args *jval.Value) (json.RawMessage, error) {
	c.logger.Debug("invoking operation", "operation", operation)
	raw, err := c.inv.Invoke(ctx, operation, args)
	if err != nil {
		c.logger.Warn("operation failed", "operation", operation, "error", err)
		return nil, err
	}
	return raw, nil
}

// pluck unmarshals the field at path into a slice of T. A missing field
// yields an empty slice: the remote contract leaves fields out when
// there is nothing to report.
func pluck[T any](raw json.RawMessage, path string) ([]T, error) {
	res := gjson.GetBytes(raw, path)
	if !res.Exists() {
		return nil, nil
	}
	var out []T
	if err := json.Unmarshal([]byte(res.Raw), &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return out, nil
}

// --- Docs ---

// SearchDocs searches platform documentation. The query travels as a
// GraphQL searchDocs call, matching the remote contract.
func (c *Client) SearchDocs(ctx context.Context, query string, limit int) ([]DocResult, error) {
	if limit <= 0 {
		limit = 5
	}
	graphql := fmt.Sprintf(`{ searchDocs(query: %s, limit: %d) { nodes { title href content } } }`,
		strconv.Quote(query), limit)

	raw, err := c.call(ctx, "search_docs", jval.Object().Set("graphql_query", jval.String(graphql)))
	if err != nil {
		return nil, err
	}
	return pluck[DocResult](raw, "searchDocs.nodes")
}

// --- Account ---

// ListOrganizations lists the organizations the caller belongs to.
func (c *Client) ListOrganizations(ctx context.Context) ([]Organization, error) {
	raw, err := c.call(ctx, "list_organizations", nil)
	if err != nil {
		return nil, err
	}
	return pluck[Organization](raw, "organizations")
}

// GetOrganization returns one organization by id, raw.
func (c *Client) GetOrganization(ctx context.Context, id string) (json.RawMessage, error) {
	return c.call(ctx, "get_organization", jval.Object().Set("id", jval.String(id)))
}

// --- Projects ---

// ListProjects lists all projects.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	raw, err := c.call(ctx, "list_projects", nil)
	if err != nil {
		return nil, err
	}
	return pluck[Project](raw, "projects")
}

// GetProject returns one project's details, raw.
func (c *Client) GetProject(ctx context.Context, id string) (json.RawMessage, error) {
	return c.call(ctx, "get_project", jval.Object().Set("id", jval.String(id)))
}

// CreateProject creates a new project.
func (c *Client) CreateProject(ctx context.Context, req CreateProjectRequest) (json.RawMessage, error) {
	args := jval.Object().
		Set("name", jval.String(req.Name)).
		Set("organization_id", jval.String(req.OrganizationID))
	if req.Region != "" {
		args.Set("region", jval.String(req.Region))
	}
	if req.ConfirmCostID != "" {
		args.Set("confirm_cost_id", jval.String(req.ConfirmCostID))
	}
	return c.call(ctx, "create_project", args)
}

// PauseProject pauses a project.
func (c *Client) PauseProject(ctx context.Context, projectID string) error {
	_, err := c.call(ctx, "pause_project", projectArgs(projectID))
	return err
}

// RestoreProject restores a paused project.
func (c *Client) RestoreProject(ctx context.Context, projectID string) error {
	_, err := c.call(ctx, "restore_project", projectArgs(projectID))
	return err
}

// GetProjectURL returns the project's API URL payload, raw.
func (c *Client) GetProjectURL(ctx context.Context, projectID string) (json.RawMessage, error) {
	return c.call(ctx, "get_project_url", projectArgs(projectID))
}

// GetAnonKey returns the project's anonymous key payload, raw.
func (c *Client) GetAnonKey(ctx context.Context, projectID string) (json.RawMessage, error) {
	return c.call(ctx, "get_anon_key", projectArgs(projectID))
}

// --- Database ---

// ListTables lists database tables, optionally limited to schemas.
func (c *Client) ListTables(ctx context.Context, projectID string, schemas []string) ([]Table, error) {
	args := projectArgs(projectID)
	if len(schemas) > 0 {
		arr := jval.Array()
		for _, s := range schemas {
			arr.Append(jval.String(s))
		}
		args.Set("schemas", arr)
	}

	raw, err := c.call(ctx, "list_tables", args)
	if err != nil {
		return nil, err
	}
	return pluck[Table](raw, "tables")
}

// ListExtensions lists installed database extensions.
func (c *Client) ListExtensions(ctx context.Context, projectID string) ([]Extension, error) {
	raw, err := c.call(ctx, "list_extensions", projectArgs(projectID))
	if err != nil {
		return nil, err
	}
	return pluck[Extension](raw, "extensions")
}

// ListMigrations lists applied schema migrations.
func (c *Client) ListMigrations(ctx context.Context, projectID string) ([]Migration, error) {
	raw, err := c.call(ctx, "list_migrations", projectArgs(projectID))
	if err != nil {
		return nil, err
	}
	return pluck[Migration](raw, "migrations")
}

// ApplyMigration applies a named schema migration.
func (c *Client) ApplyMigration(ctx context.Context, projectID, name, query string) (json.RawMessage, error) {
	args := projectArgs(projectID).
		Set("name", jval.String(name)).
		Set("query", jval.String(query))
	return c.call(ctx, "apply_migration", args)
}

// ExecuteSQL runs raw SQL against the project database. The result
// shape is defined entirely by the query, so it stays raw.
func (c *Client) ExecuteSQL(ctx context.Context, projectID, query string) (json.RawMessage, error) {
	args := projectArgs(projectID).Set("query", jval.String(query))
	return c.call(ctx, "execute_sql", args)
}

// GenerateTypescriptTypes generates TypeScript types from the schema.
func (c *Client) GenerateTypescriptTypes(ctx context.Context, projectID string) (string, error) {
	raw, err := c.call(ctx, "generate_typescript_types", projectArgs(projectID))
	if err != nil {
		return "", err
	}
	return gjson.GetBytes(raw, "types").String(), nil
}

// --- Debugging ---

// GetLogs fetches service logs for a project, raw.
func (c *Client) GetLogs(ctx context.Context, projectID, service string) (json.RawMessage, error) {
	args := projectArgs(projectID)
	if service != "" {
		args.Set("service", jval.String(service))
	}
	return c.call(ctx, "get_logs", args)
}

// GetAdvisors fetches security/performance advisors. advisorType is
// "security", "performance", or "all".
func (c *Client) GetAdvisors(ctx context.Context, projectID, advisorType string) ([]Advisor, error) {
	args := projectArgs(projectID)
	if advisorType != "" {
		args.Set("type", jval.String(advisorType))
	}

	raw, err := c.call(ctx, "get_advisors", args)
	if err != nil {
		return nil, err
	}
	return pluck[Advisor](raw, "advisors")
}

// --- Edge functions ---

// ListEdgeFunctions lists deployed edge functions.
func (c *Client) ListEdgeFunctions(ctx context.Context, projectID string) ([]EdgeFunction, error) {
	raw, err := c.call(ctx, "list_edge_functions", projectArgs(projectID))
	if err != nil {
		return nil, err
	}
	return pluck[EdgeFunction](raw, "functions")
}

// GetEdgeFunction returns one edge function, raw.
func (c *Client) GetEdgeFunction(ctx context.Context, projectID, slug string) (json.RawMessage, error) {
	args := projectArgs(projectID).Set("slug", jval.String(slug))
	return c.call(ctx, "get_edge_function", args)
}

// DeployEdgeFunction deploys an edge function from source files.
func (c *Client) DeployEdgeFunction(ctx context.Context, projectID, name string, files []FunctionFile) (json.RawMessage, error) {
	arr := jval.Array()
	for _, f := range files {
		arr.Append(jval.Object().
			Set("name", jval.String(f.Name)).
			Set("content", jval.String(f.Content)))
	}
	args := projectArgs(projectID).
		Set("name", jval.String(name)).
		Set("files", arr)
	return c.call(ctx, "deploy_edge_function", args)
}

// --- Branches ---

// CreateBranch creates a development branch.
func (c *Client) CreateBranch(ctx context.Context, projectID, name, confirmCostID string) (json.RawMessage, error) {
	args := projectArgs(projectID).Set("name", jval.String(name))
	if confirmCostID != "" {
		args.Set("confirm_cost_id", jval.String(confirmCostID))
	}
	return c.call(ctx, "create_branch", args)
}

// ListBranches lists development branches.
func (c *Client) ListBranches(ctx context.Context, projectID string) ([]Branch, error) {
	raw, err := c.call(ctx, "list_branches", projectArgs(projectID))
	if err != nil {
		return nil, err
	}
	return pluck[Branch](raw, "branches")
}

// DeleteBranch deletes a development branch.
func (c *Client) DeleteBranch(ctx context.Context, branchID string) error {
	_, err := c.call(ctx, "delete_branch", branchArgs(branchID))
	return err
}

// MergeBranch merges a branch into production.
func (c *Client) MergeBranch(ctx context.Context, branchID string) (json.RawMessage, error) {
	return c.call(ctx, "merge_branch", branchArgs(branchID))
}

// ResetBranch resets a branch, optionally to a prior migration version.
func (c *Client) ResetBranch(ctx context.Context, branchID, migrationVersion string) (json.RawMessage, error) {
	args := branchArgs(branchID)
	if migrationVersion != "" {
		args.Set("migration_version", jval.String(migrationVersion))
	}
	return c.call(ctx, "reset_branch", args)
}

// RebaseBranch rebases a branch onto production.
func (c *Client) RebaseBranch(ctx context.Context, branchID string) (json.RawMessage, error) {
	return c.call(ctx, "rebase_branch", branchArgs(branchID))
}

// --- Cost ---

// GetCost quotes the cost of creating a resource ("project" or "branch").
func (c *Client) GetCost(ctx context.Context, organizationID, costType string) (json.RawMessage, error) {
	args := jval.Object().
		Set("type", jval.String(costType)).
		Set("organization_id", jval.String(organizationID))
	return c.call(ctx, "get_cost", args)
}

// ConfirmCost confirms a quoted cost and returns the confirmation id.
func (c *Client) ConfirmCost(ctx context.Context, costType string, recurrence string, amount float64) (string, error) {
	args := jval.Object().
		Set("type", jval.String(costType)).
		Set("recurrence", jval.String(recurrence)).
		Set("amount", jval.Float(amount))

	raw, err := c.call(ctx, "confirm_cost", args)
	if err != nil {
		return "", err
	}
	return gjson.GetBytes(raw, "id").String(), nil
}

func projectArgs(projectID string) *jval.Value {
	return jval.Object().Set("project_id", jval.String(projectID))
}

func branchArgs(branchID string) *jval.Value {
	return jval.Object().Set("branch_id", jval.String(branchID))
}
