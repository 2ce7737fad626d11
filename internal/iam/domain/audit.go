package domain

import "time"

// Audit actions recorded by the service.
const (
	AuditUserRegistered   = "user.registered"
	AuditUserVerified     = "user.verified"
	AuditUserUpdated      = "user.updated"
	AuditUserDeleted      = "user.deleted"
	AuditLoginSucceeded   = "login.succeeded"
	AuditLoginFailed      = "login.failed"
	AuditLoginLocked      = "login.locked"
	AuditTokenRefreshed   = "token.refreshed"
	AuditTokenRevoked     = "token.revoked"
	AuditLogout           = "logout"
	AuditPasswordReset    = "password.reset"
	AuditRoleGranted      = "role.granted"
	AuditRoleRevoked      = "role.revoked"
)

// AuditRecord is an append-only trace of a security-relevant event. Records
// deliberately carry no foreign keys so they survive user deletion.
type AuditRecord struct {
	ID           string
	ActorID      *string // nullable; empty for anonymous actions
	Action       string
	ResourceType string
	ResourceID   *string
	Details      *string // JSON blob (nullable)
	IPAddress    *string
	CreatedAt    time.Time
}
