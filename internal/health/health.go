// Package health provides relay health monitoring and the admin HTTP
// endpoints.
package health

// SystemStatus represents the overall health state of the relay or a
// dependency.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// DependencyHealth is one dependency's probe result.
type DependencyHealth struct {
	Name   string       `json:"name"`
	Status SystemStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}
