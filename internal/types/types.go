package types

import "time"

// FailReason classifies why a proxy probe did not produce a working result.
type FailReason string

const (
	ReasonInvalidFormat    FailReason = "invalid_format"
	ReasonTimeout          FailReason = "timeout"
	ReasonConnectionError  FailReason = "connection_error"
	ReasonNoValidResponse  FailReason = "no_valid_response"
	ReasonExhaustedRetries FailReason = "exhausted_retries"
	ReasonWorkerFault      FailReason = "worker_fault"
)

// Outcome is the terminal record produced for one proxy spec after all
// probing is complete. Exactly one Outcome exists per submitted spec.
type Outcome struct {
	Proxy          string     `json:"proxy"`
	Alive          bool       `json:"alive"`
	IP             string     `json:"ip,omitempty"`
	Country        string     `json:"country,omitempty"`
	City           string     `json:"city,omitempty"`
	ResponseTimeMs int64      `json:"response_time_ms,omitempty"`
	Endpoint       string     `json:"endpoint,omitempty"`
	Reason         FailReason `json:"reason,omitempty"`
	Error          string     `json:"error,omitempty"`
}

// Success is the output-artifact record for a working proxy.
type Success struct {
	Proxy          string `json:"proxy"`
	IP             string `json:"ip"`
	Country        string `json:"country"`
	City           string `json:"city"`
	ResponseTimeMs int64  `json:"response_time_ms"`
	Endpoint       string `json:"endpoint"`
}

// Failure is the output-artifact record for a broken proxy.
type Failure struct {
	Proxy  string     `json:"proxy"`
	Reason FailReason `json:"reason"`
	Error  string     `json:"error,omitempty"`
}

// Success converts a working outcome into its artifact record.
func (o Outcome) Success() Success {
	return Success{
		Proxy:          o.Proxy,
		IP:             o.IP,
		Country:        o.Country,
		City:           o.City,
		ResponseTimeMs: o.ResponseTimeMs,
		Endpoint:       o.Endpoint,
	}
}

// Failure converts a failed outcome into its artifact record.
func (o Outcome) Failure() Failure {
	return Failure{
		Proxy:  o.Proxy,
		Reason: o.Reason,
		Error:  o.Error,
	}
}

// Summary holds running statistics for one check run.
type Summary struct {
	Total          int       `json:"total"`
	Processed      int       `json:"processed"`
	Working        int       `json:"working"`
	Failed         int       `json:"failed"`
	WorkingPercent float64   `json:"working_percent"`
	Speed          string    `json:"speed"`
	ETA            string    `json:"eta"`
	StartedAt      time.Time `json:"started_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Snapshot is a point-in-time view of the current run, persisted by the
// storage backends and served by the status API.
type Snapshot struct {
	Summary Summary   `json:"summary"`
	Working []Success `json:"working"`
	Updated time.Time `json:"updated"`
}
