// Package doctor validates the supactl environment and configuration.
package doctor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/mattjoyce/supactl/internal/catalog"
	"github.com/mattjoyce/supactl/internal/config"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded configuration against the host environment.
type Doctor struct {
	cfg *config.Config
}

// New creates a Doctor from a loaded config.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.checkConnector(r)
	d.checkBinary(r)
	d.warnMissingAccessToken(r)
	d.checkJournal(r)
	d.checkRelay(r)
	d.checkCatalog(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// checkConnector checks required connector fields.
func (d *Doctor) checkConnector(r *Result) {
	if d.cfg.Connector.Binary == "" {
		d.addError(r, "connector", "connector.binary", "binary is required")
	}
	if d.cfg.Connector.Server == "" {
		d.addError(r, "connector", "connector.server", "server is required")
	}
	if d.cfg.Connector.Timeout <= 0 {
		d.addError(r, "connector", "connector.timeout", "timeout must be positive")
	}
	if d.cfg.Connector.GracePeriod <= 0 {
		d.addError(r, "connector", "connector.grace_period", "grace_period must be positive")
	}
}

// checkBinary checks that the external tool resolves on PATH.
func (d *Doctor) checkBinary(r *Result) {
	if d.cfg.Connector.Binary == "" {
		return
	}
	if _, err := exec.LookPath(d.cfg.Connector.Binary); err != nil {
		d.addError(r, "connector", "connector.binary",
			fmt.Sprintf("%s not found on PATH: %v", d.cfg.Connector.Binary, err))
	}
}

// warnMissingAccessToken warns when the credential env var is unset.
// This is a warning, not an error: unauthenticated operations still
// work, and the remote side reports the auth failure for the rest.
func (d *Doctor) warnMissingAccessToken(r *Result) {
	envVar := d.cfg.Connector.AccessTokenEnv
	if envVar == "" {
		return
	}
	if os.Getenv(envVar) == "" {
		d.addWarning(r, "connector", "connector.access_token_env",
			fmt.Sprintf("%s is not set; authenticated operations will fail remotely", envVar))
	}
}

// checkJournal checks the journal directory can be created.
func (d *Doctor) checkJournal(r *Result) {
	if !d.cfg.Journal.Enabled {
		return
	}
	if d.cfg.Journal.Path == "" {
		d.addError(r, "journal", "journal.path", "path is required when journal is enabled")
		return
	}
	dir := filepath.Dir(d.cfg.Journal.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		d.addError(r, "journal", "journal.path",
			fmt.Sprintf("cannot create journal directory %s: %v", dir, err))
	}
}

// checkCatalog checks the compiled-in operation table for duplicates.
func (d *Doctor) checkCatalog(r *Result) {
	ops := catalog.All()
	if len(ops) == 0 {
		d.addError(r, "catalog", "", "operation catalog is empty")
		return
	}
	seen := make(map[string]bool, len(ops))
	for _, op := range ops {
		if seen[op.Name] {
			d.addError(r, "catalog", "",
				fmt.Sprintf("duplicate operation %s in catalog", op.Name))
		}
		seen[op.Name] = true
	}
}

// checkRelay checks relay settings when enabled.
func (d *Doctor) checkRelay(r *Result) {
	if !d.cfg.Relay.Enabled {
		return
	}
	if d.cfg.Relay.Listen == "" {
		d.addError(r, "relay", "relay.listen", "listen is required when relay is enabled")
	}
	if d.cfg.Relay.Auth.APIKey == "" {
		d.addError(r, "relay", "relay.auth.api_key", "api_key is required when relay is enabled")
	}
}
