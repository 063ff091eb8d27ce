package connector

// Organization is one account organization.
type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Plan string `json:"plan,omitempty"`
}

// Project is one platform project.
type Project struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	OrganizationID string `json:"organization_id"`
	Region         string `json:"region"`
	Status         string `json:"status"`
	CreatedAt      string `json:"created_at"`
}

// Table is one database table.
type Table struct {
	Schema string `json:"schema"`
	Name   string `json:"name"`
}

// Extension is one installed database extension.
type Extension struct {
	Name             string `json:"name"`
	Schema           string `json:"schema,omitempty"`
	InstalledVersion string `json:"installed_version,omitempty"`
}

// Migration is one applied schema migration.
type Migration struct {
	Version string `json:"version"`
	Name    string `json:"name,omitempty"`
}

// Advisor is one security or performance recommendation.
type Advisor struct {
	Level    string `json:"level"`
	Message  string `json:"message"`
	Category string `json:"category,omitempty"`
}

// EdgeFunction is one deployed edge function.
type EdgeFunction struct {
	ID      string `json:"id,omitempty"`
	Slug    string `json:"slug,omitempty"`
	Name    string `json:"name"`
	Status  string `json:"status,omitempty"`
	Version int    `json:"version,omitempty"`
}

// FunctionFile is one source file of an edge function deployment.
type FunctionFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Branch is one development branch.
type Branch struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name"`
	Status string `json:"status,omitempty"`
}

// DocResult is one documentation search hit.
type DocResult struct {
	Title   string `json:"title"`
	Href    string `json:"href"`
	Content string `json:"content,omitempty"`
}

// CreateProjectRequest carries the fields for create_project.
type CreateProjectRequest struct {
	Name           string
	OrganizationID string
	Region         string
	ConfirmCostID  string
}
