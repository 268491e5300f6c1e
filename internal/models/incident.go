package models

import (
	"time"

	"github.com/google/uuid"
)

// Severity of a tenant incident.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}

// Incident types.
const (
	IncidentHeaderPathMismatch     = "header_path_mismatch"
	IncidentHeaderDomainMismatch   = "header_domain_mismatch"
	IncidentPathDomainMismatch     = "path_domain_mismatch"
	IncidentGuardSelectionOverride = "guard_selection_override"
	IncidentGuardGenericOverride   = "guard_generic_override"
)

// TenantIncident is a recorded disagreement between tenant resolution signals.
// Immutable once created except for AcknowledgedAt.
type TenantIncident struct {
	ID             uuid.UUID              `json:"id"`
	CityID         *uuid.UUID             `json:"city_id,omitempty"`
	Type           string                 `json:"type"`
	Severity       Severity               `json:"severity"`
	Source         string                 `json:"source"`
	ModuleKey      string                 `json:"module_key,omitempty"`
	RequestID      string                 `json:"request_id,omitempty"`
	TraceID        string                 `json:"trace_id,omitempty"`
	Context        map[string]interface{} `json:"context,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	AcknowledgedAt *time.Time             `json:"acknowledged_at,omitempty"`
}
