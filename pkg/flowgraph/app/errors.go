package app

import (
	"fmt"

	fgerrors "github.com/randalmurphal/flowhost/pkg/flowgraph/errors"
)

// Sentinel errors for application management.
var (
	// ErrApplicationNotFound indicates no live application has the identity.
	ErrApplicationNotFound = fgerrors.Sentinel(fgerrors.CategoryNotFound, "application not found")

	// ErrFlowNotFound indicates the application has no flow with the name.
	ErrFlowNotFound = fgerrors.Sentinel(fgerrors.CategoryNotFound, "flow not found")

	// ErrNoSource indicates a redeploy of an identity with no known source.
	ErrNoSource = fgerrors.Sentinel(fgerrors.CategoryNotFound, "no source for application")

	// ErrApplicationUndeployed indicates the application stopped admitting runs.
	ErrApplicationUndeployed = fgerrors.Sentinel(fgerrors.CategoryTransient, "application undeployed")

	// ErrManagerClosed indicates the manager no longer accepts work.
	ErrManagerClosed = fgerrors.Sentinel(fgerrors.CategoryTransient, "manager closed")

	// ErrInvalidIdentity indicates an identity that cannot be stored.
	ErrInvalidIdentity = fgerrors.Sentinel(fgerrors.CategoryConfiguration, "invalid identity")
)

// DeployError reports a failed deploy attempt.
type DeployError struct {
	Identity string
	// Version is the version the attempt took, or 0 when the source failed
	// validation and no version was taken.
	Version int
	Err     error
}

// Error implements the error interface.
func (e *DeployError) Error() string {
	if e.Version > 0 {
		return fmt.Sprintf("deploy %s version %d: %v", e.Identity, e.Version, e.Err)
	}
	return fmt.Sprintf("deploy %s: %v", e.Identity, e.Err)
}

// Unwrap returns the underlying error.
func (e *DeployError) Unwrap() error {
	return e.Err
}
