package tenancy

import "errors"

var (
	// ErrTenantNotFound means no signal resolved to an active city.
	ErrTenantNotFound = errors.New("tenant not found")
	// ErrTenantInactive means the resolved city exists but is deactivated.
	// Clients see it exactly like ErrTenantNotFound.
	ErrTenantInactive = errors.New("tenant inactive")
	// ErrTenantAmbiguous marks signals that named different cities. It only feeds
	// incident recording; precedence always produces a winner.
	ErrTenantAmbiguous = errors.New("tenant signals disagree")
	// ErrGuardDenied means the identity may not act on any city of the admin surface.
	ErrGuardDenied = errors.New("guard denied")
)

// IsNotFound reports whether err should be presented to clients as an unknown city.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTenantNotFound) || errors.Is(err, ErrTenantInactive)
}
