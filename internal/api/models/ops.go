package models

// Health represents the health status of the companion API.
type Health struct {
	Status  HealthStatus   `json:"status"`
	Time    Timestamp      `json:"time"`
	Version string         `json:"version,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// SystemStatus reports the companion API and the backends it depends on.
type SystemStatus struct {
	Status      HealthStatus     `json:"status"`
	Time        Timestamp        `json:"time"`
	Storage     string           `json:"storage"`
	PrivacyMode bool             `json:"privacyMode"`
	Upstreams   []UpstreamStatus `json:"upstreams"`
}

// UpstreamStatus is the circuit state of one backend client.
type UpstreamStatus struct {
	Name          string       `json:"name"`
	Status        HealthStatus `json:"status"`
	Circuit       string       `json:"circuit"`
	LastSuccessAt *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt *Timestamp   `json:"lastFailureAt,omitempty"`
	Message       *string      `json:"message,omitempty"`
}
