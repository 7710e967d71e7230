package component

import "context"

// HealthStatus represents the health state of a component.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusUnhealthy HealthStatus = "unhealthy"
	StatusDegraded  HealthStatus = "degraded"
)

// Health holds health information for a component.
type Health struct {
	Name    string       `json:"name"`
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// Component is a lifecycle-managed backend such as a redis connection,
// an object store or a SQL database behind one of the pipeline tiers.
type Component interface {
	// Name returns the unique name of the component for registration.
	Name() string

	// Start connects the component.
	Start(ctx context.Context) error

	// Stop releases the component's resources.
	Stop(ctx context.Context) error

	// Health returns the current health status of the component.
	Health(ctx context.Context) Health
}

// Description is a one-line summary of a component.
type Description struct {
	// Name is the display name (e.g. "Redis"). Defaults to Component.Name.
	Name string `json:"name"`
	// Type categorizes the component: "redis", "storage", "sql".
	Type string `json:"type"`
	// Details is a short configuration summary, e.g. "localhost:6379 db=0".
	Details string `json:"details,omitempty"`
}

// Describable is optionally implemented by components that can summarize
// their configuration.
type Describable interface {
	Describe() Description
}
