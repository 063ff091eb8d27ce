// Package catalog enumerates the remote operations the management tool
// exposes. The catalog is fixed by the remote platform; supactl only
// names the identifiers, it never validates argument shapes (the remote
// side is the sole validator).
package catalog

// Group buckets operations by the resource they manage.
type Group string

const (
	GroupDocs      Group = "docs"
	GroupAccount   Group = "account"
	GroupProject   Group = "project"
	GroupDatabase  Group = "database"
	GroupDebug     Group = "debug"
	GroupFunctions Group = "functions"
	GroupBranch    Group = "branch"
	GroupCost      Group = "cost"
)

// Operation describes one entry of the remote catalog.
type Operation struct {
	Name      string `json:"name"`
	Group     Group  `json:"group"`
	NeedsAuth bool   `json:"needs_auth"` // needs the platform access token
	Summary   string `json:"summary"`
}

// operations is the full remote catalog, in platform order.
var operations = []Operation{
	{Name: "search_docs", Group: GroupDocs, Summary: "Search platform documentation via GraphQL"},

	{Name: "list_organizations", Group: GroupAccount, NeedsAuth: true, Summary: "List organizations the caller belongs to"},
	{Name: "get_organization", Group: GroupAccount, NeedsAuth: true, Summary: "Get one organization by id"},

	{Name: "list_projects", Group: GroupProject, NeedsAuth: true, Summary: "List all projects"},
	{Name: "get_project", Group: GroupProject, NeedsAuth: true, Summary: "Get one project by id"},
	{Name: "create_project", Group: GroupProject, NeedsAuth: true, Summary: "Create a new project"},
	{Name: "pause_project", Group: GroupProject, NeedsAuth: true, Summary: "Pause a project"},
	{Name: "restore_project", Group: GroupProject, NeedsAuth: true, Summary: "Restore a paused project"},
	{Name: "get_project_url", Group: GroupProject, NeedsAuth: true, Summary: "Get the project API URL"},
	{Name: "get_anon_key", Group: GroupProject, NeedsAuth: true, Summary: "Get the project anonymous API key"},

	{Name: "list_tables", Group: GroupDatabase, NeedsAuth: true, Summary: "List database tables"},
	{Name: "list_extensions", Group: GroupDatabase, NeedsAuth: true, Summary: "List installed database extensions"},
	{Name: "list_migrations", Group: GroupDatabase, NeedsAuth: true, Summary: "List applied migrations"},
	{Name: "apply_migration", Group: GroupDatabase, NeedsAuth: true, Summary: "Apply a named schema migration"},
	{Name: "execute_sql", Group: GroupDatabase, NeedsAuth: true, Summary: "Execute raw SQL against the project database"},
	{Name: "generate_typescript_types", Group: GroupDatabase, NeedsAuth: true, Summary: "Generate TypeScript types from the schema"},

	{Name: "get_logs", Group: GroupDebug, NeedsAuth: true, Summary: "Fetch service logs for a project"},
	{Name: "get_advisors", Group: GroupDebug, NeedsAuth: true, Summary: "Fetch security and performance advisors"},

	{Name: "list_edge_functions", Group: GroupFunctions, NeedsAuth: true, Summary: "List deployed edge functions"},
	{Name: "get_edge_function", Group: GroupFunctions, NeedsAuth: true, Summary: "Get one edge function"},
	{Name: "deploy_edge_function", Group: GroupFunctions, NeedsAuth: true, Summary: "Deploy an edge function"},

	{Name: "create_branch", Group: GroupBranch, NeedsAuth: true, Summary: "Create a development branch"},
	{Name: "list_branches", Group: GroupBranch, NeedsAuth: true, Summary: "List development branches"},
	{Name: "delete_branch", Group: GroupBranch, NeedsAuth: true, Summary: "Delete a development branch"},
	{Name: "merge_branch", Group: GroupBranch, NeedsAuth: true, Summary: "Merge a branch into production"},
	{Name: "reset_branch", Group: GroupBranch, NeedsAuth: true, Summary: "Reset a branch to a prior migration"},
	{Name: "rebase_branch", Group: GroupBranch, NeedsAuth: true, Summary: "Rebase a branch onto production"},

	{Name: "get_cost", Group: GroupCost, NeedsAuth: true, Summary: "Quote the cost of a resource"},
	{Name: "confirm_cost", Group: GroupCost, NeedsAuth: true, Summary: "Confirm a quoted cost"},
}

var byName = func() map[string]Operation {
	m := make(map[string]Operation, len(operations))
	for _, op := range operations {
		m[op.Name] = op
	}
	return m
}()

// Lookup returns the catalog entry for name.
func Lookup(name string) (Operation, bool) {
	op, ok := byName[name]
	return op, ok
}

// Exists reports whether name is a catalog operation.
func Exists(name string) bool {
	_, ok := byName[name]
	return ok
}

// All returns the catalog in platform order.
func All() []Operation {
	return append([]Operation(nil), operations...)
}

// ByGroup returns the catalog entries for one group, in platform order.
func ByGroup(g Group) []Operation {
	var out []Operation
	for _, op := range operations {
		if op.Group == g {
			out = append(out, op)
		}
	}
	return out
}

// Groups returns the distinct groups in platform order.
func Groups() []Group {
	var out []Group
	seen := make(map[Group]bool)
	for _, op := range operations {
		if !seen[op.Group] {
			seen[op.Group] = true
			out = append(out, op.Group)
		}
	}
	return out
}
