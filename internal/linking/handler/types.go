package handler

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error     string `json:"error"`
	Status    int    `json:"status"`
	Timestamp int64  `json:"timestamp"`
	Details   string `json:"details,omitempty"`
}

type CodeRequest struct {
	AccountID   string `json:"account_id"`
	DisplayName string `json:"display_name"`
}

type CodeResponse struct {
	Code             string `json:"code"`
	ExpiresAt        int64  `json:"expires_at"`
	ExpiresInSeconds int64  `json:"expires_in_seconds"`
	DisplayName      string `json:"display_name"`
	AccountID        string `json:"account_id"`
}

type VerifyRequest struct {
	Code       string `json:"code"`
	ExternalID int64  `json:"external_id"`
}

type VerifyResponse struct {
	Success     bool   `json:"success"`
	DisplayName string `json:"display_name"`
	AccountID   string `json:"account_id"`
	ExternalID  int64  `json:"external_id"`
	LinkedAt    int64  `json:"linked_at"`
}

// VerifyFailure is returned with 400 for an unknown or expired code.
type VerifyFailure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

type LinkResponse struct {
	Linked      bool   `json:"linked"`
	DisplayName string `json:"display_name,omitempty"`
	AccountID   string `json:"account_id,omitempty"`
	ExternalID  int64  `json:"external_id,omitempty"`
	LinkedAt    int64  `json:"linked_at,omitempty"`
	Error       string `json:"error,omitempty"`
}

// LinksSummary is returned by GET /api/links without a query.
type LinksSummary struct {
	TotalLinks int    `json:"total_links"`
	Endpoint   string `json:"endpoint"`
	Usage      string `json:"usage"`
}

type UnlinkResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
	AccountID  string `json:"account_id,omitempty"`
	ExternalID int64  `json:"external_id,omitempty"`
}

type JoinRequest = CodeRequest

type JoinResponse struct {
	Allowed    bool   `json:"allowed"`
	ExternalID int64  `json:"external_id,omitempty"`
	Code       string `json:"code,omitempty"`
	ExpiresAt  int64  `json:"expires_at,omitempty"`
	Message    string `json:"message"`
}

type Statistics struct {
	TotalLinks   int `json:"total_links"`
	PendingCodes int `json:"pending_codes"`
	ActiveCodes  int `json:"active_codes"`
	ExpiredCodes int `json:"expired_codes"`
}

type ServiceInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type RateLimitInfo struct {
	Requests int   `json:"requests"`
	WindowMs int64 `json:"window_ms"`
}

type APIInfo struct {
	Version   string        `json:"version"`
	RateLimit RateLimitInfo `json:"rate_limit"`
}

type HealthResponse struct {
	Status        string      `json:"status"`
	Service       ServiceInfo `json:"service"`
	API           APIInfo     `json:"api"`
	Statistics    Statistics  `json:"statistics"`
	Timestamp     int64       `json:"timestamp"`
	UptimeSeconds int64       `json:"uptime_seconds"`
	Error         string      `json:"error,omitempty"`
}

type StatsResponse struct {
	Statistics
	API       APIInfo `json:"api_info"`
	Timestamp int64   `json:"timestamp"`
}

type AuditEntry struct {
	ID         string `json:"id"`
	Action     string `json:"action"`
	ExternalID int64  `json:"external_id,omitempty"`
	Source     string `json:"source"`
	IP         string `json:"ip"`
	Metadata   string `json:"metadata,omitempty"`
	CreatedAt  int64  `json:"created_at"`
}

type AuditResponse struct {
	AccountID string       `json:"account_id"`
	Entries   []AuditEntry `json:"entries"`
}
