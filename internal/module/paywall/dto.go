package paywall

// CreationStatusResponse is the creation-status endpoint payload.
type CreationStatusResponse struct {
	Success            bool   `json:"success"`
	IsFree             bool   `json:"isFree"`
	FreeSongsUsed      int    `json:"freeSongsUsed"`
	Message            string `json:"message"`
	UserType           string `json:"userType"`
	HasUnlimitedAccess bool   `json:"hasUnlimitedAccess,omitempty"`
}

// FallbackMetricsResponse is the diagnostic counters payload.
type FallbackMetricsResponse struct {
	Success bool            `json:"success"`
	Metrics FallbackMetrics `json:"metrics"`
}
