package session

import (
	"encoding/json"
	"fmt"
)

// Contract selects which auth-check response shape the backend speaks. The
// two shapes are independent contracts and are never merged.
type Contract string

const (
	// ContractChat expects {"loggedIn": bool, "requiresSetup": bool}.
	ContractChat Contract = "chat"
	// ContractAdmin expects {"logged_in": bool}.
	ContractAdmin Contract = "admin"
)

// AuthCheck is the decoded auth-check answer. RequiresSetup is Unknown for
// contracts that do not report it.
type AuthCheck struct {
	LoggedIn      bool
	RequiresSetup Tristate
}

type chatAuthCheck struct {
	LoggedIn      *bool `json:"loggedIn"`
	RequiresSetup *bool `json:"requiresSetup"`
}

type adminAuthCheck struct {
	LoggedIn *bool `json:"logged_in"`
}

// Decode parses an auth-check body according to the contract. A body missing
// the logged-in field is a parse failure.
func (c Contract) Decode(data []byte) (AuthCheck, error) {
	switch c {
	case ContractChat, "":
		var resp chatAuthCheck
		if err := json.Unmarshal(data, &resp); err != nil {
			return AuthCheck{}, fmt.Errorf("decode auth-check: %w", err)
		}
		if resp.LoggedIn == nil {
			return AuthCheck{}, fmt.Errorf("decode auth-check: missing loggedIn")
		}
		check := AuthCheck{LoggedIn: *resp.LoggedIn}
		if resp.RequiresSetup != nil {
			check.RequiresSetup = FromBool(*resp.RequiresSetup)
		}
		return check, nil

	case ContractAdmin:
		var resp adminAuthCheck
		if err := json.Unmarshal(data, &resp); err != nil {
			return AuthCheck{}, fmt.Errorf("decode auth-check: %w", err)
		}
		if resp.LoggedIn == nil {
			return AuthCheck{}, fmt.Errorf("decode auth-check: missing logged_in")
		}
		return AuthCheck{LoggedIn: *resp.LoggedIn}, nil

	default:
		return AuthCheck{}, fmt.Errorf("unknown auth contract %q", string(c))
	}
}
