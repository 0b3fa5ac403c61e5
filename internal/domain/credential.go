package domain

import "time"

// CredentialStatus marks whether a credential participates in the refresh cycle.
type CredentialStatus string

const (
	StatusActive   CredentialStatus = "active"
	StatusInactive CredentialStatus = "inactive"
)

// Status reasons recorded when a credential is flagged inactive.
const (
	ReasonNoRefreshToken  = "no_refresh_token"
	ReasonRefreshRejected = "refresh_rejected"
)

// Credential is the stored token material for one linked Discord user.
type Credential struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	Scope        string
	TokenType    string
	ProfileURL   string
	ExpiresAt    time.Time
	LastUpdated  time.Time
	Status       CredentialStatus
	StatusReason string
}

// Expired reports whether the access token is past its expiry at now.
func (c Credential) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Refreshable reports whether the credential can be renewed without
// re-running the authorization flow.
func (c Credential) Refreshable() bool {
	return c.RefreshToken != "" && c.Status == StatusActive
}
