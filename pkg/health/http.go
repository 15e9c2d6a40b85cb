package health

import (
	"encoding/json"
	"net/http"
)

// Response is the JSON body of the health endpoint.
type Response struct {
	Status  string                 `json:"status"` // "healthy" | "unhealthy"
	Checks  map[string]CheckStatus `json:"checks,omitempty"`
	Message string                 `json:"message,omitempty"`
}

// CheckStatus is one check in a Response.
type CheckStatus struct {
	Status  string `json:"status"` // "ok" | "error"
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Handler serves the checks: 200 when healthy, 503 otherwise.
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := c.Run(r.Context())

		resp := Response{Status: "healthy", Checks: make(map[string]CheckStatus, len(status.Checks))}
		code := http.StatusOK
		if !status.Healthy {
			resp.Status = "unhealthy"
			code = http.StatusServiceUnavailable
			if err != nil {
				resp.Message = err.Error()
			}
		}
		for _, result := range status.Checks {
			cs := CheckStatus{Status: "ok", Latency: result.Latency.String()}
			if !result.Healthy {
				cs.Status = "error"
				cs.Error = result.Error
			}
			resp.Checks[result.Name] = cs
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
