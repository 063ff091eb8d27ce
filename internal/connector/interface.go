package connector

import (
	"context"
	"encoding/json"

	"github.com/mattjoyce/supactl/internal/jval"
)

//go:generate mockgen -destination=mocks/mock_invoker.go -package=mocks github.com/mattjoyce/supactl/internal/connector Invoker

// Invoker defines the dispatcher surface the connector depends on.
type Invoker interface {
	Invoke(ctx context.Context, operation string, args *jval.Value) (json.RawMessage, error)
}
