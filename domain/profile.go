package domain

import (
	"errors"
	"strings"
)

// ErrInvalidProfile rejects profile names that cannot serve as namespace
// keys.
var ErrInvalidProfile = errors.New("invalid profile name")

// Built-in profiles. Any other non-empty name is a valid custom workspace.
const (
	ProfilePersonal = "personal"
	ProfileWork     = "work"
)

// DefaultProfile is used when no profile was ever selected.
const DefaultProfile = ProfilePersonal

// ProfileState is the persisted registry of workspaces and which one is
// active. It lives outside the per-profile namespaces.
type ProfileState struct {
	Active string   `json:"active"`
	Known  []string `json:"known"`
}

// NormalizeProfile lowercases and trims a profile name so namespace keys
// stay stable regardless of how the UI captured them.
func NormalizeProfile(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// WithKnown returns the state with the given profile registered.
func (p ProfileState) WithKnown(name string) ProfileState {
	for _, k := range p.Known {
		if k == name {
			return p
		}
	}
	p.Known = append(append([]string(nil), p.Known...), name)
	return p
}
