package models

import "errors"

// Domain error taxonomy. Handlers map these to HTTP statuses with errors.Is;
// nothing in the core swallows them.
var (
	ErrTenantNotFound             = errors.New("tenant not found")
	ErrTenantInactive             = errors.New("tenant is inactive")
	ErrMembershipNotFound         = errors.New("membership not found")
	ErrMembershipInactive         = errors.New("membership is not active")
	ErrInvitationInvalidOrExpired = errors.New("invitation is invalid or expired")
	ErrInvitationAlreadyUsed      = errors.New("invitation has already been used")
	ErrInsufficientRoleLevel      = errors.New("insufficient role level")
	ErrLastOwner                  = errors.New("tenant must keep at least one active owner")
	ErrFeatureNotAllowed          = errors.New("feature not allowed on current plan")
	ErrFeatureLimitExceeded       = errors.New("feature limit exceeded")
	ErrSubscriptionNotFound       = errors.New("no current subscription for tenant")
)
