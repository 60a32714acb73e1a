package types

// DefaultTenantID is the tenant the Proteus web app logs into.
const DefaultTenantID = "TID_DELTA_GREEN"

// Credentials are what a user logs in with. They are never persisted.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TenantID string `json:"tenantId"`
}

// Tenant returns the tenant ID, falling back to DefaultTenantID.
func (c Credentials) Tenant() string {
	if c.TenantID == "" {
		return DefaultTenantID
	}
	return c.TenantID
}

// Session holds the two cookies handed out by a successful login. The zero
// value means there is no session.
type Session struct {
	Token string `json:"token"`
	CSRF  string `json:"csrf"`
}

// Valid returns true when both the session token and the anti-forgery token
// are present.
func (s Session) Valid() bool {
	return s.Token != "" && s.CSRF != ""
}
