// Package auth provides static API key authentication for the HTTP surface.
package auth

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Identity describes an authenticated API client. Label is a human-readable
// name for log lines ("analyst", "loader-job"), not a secret.
type Identity struct {
	Label string
	Roles []string
}

// HasRole reports whether the identity carries role.
func (id Identity) HasRole(role string) bool {
	for _, have := range id.Roles {
		if have == role {
			return true
		}
	}
	return false
}

// APIKeyValidator resolves an API key to an identity.
type APIKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (Identity, bool)
}

// StaticAPIKeyValidator holds a fixed key set parsed from configuration.
// Spec format: "key:label:role|role,key2:label2:role" with commas between
// keys and pipes between roles.
type StaticAPIKeyValidator struct {
	keys map[string]Identity
}

func NewStaticAPIKeyValidator(spec string) (*StaticAPIKeyValidator, error) {
	keys, err := parseKeySpec(spec)
	if err != nil {
		return nil, err
	}
	return &StaticAPIKeyValidator{keys: keys}, nil
}

func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) (Identity, bool) {
	id, ok := v.keys[apiKey]
	return id, ok
}

func parseKeySpec(spec string) (map[string]Identity, error) {
	keys := map[string]Identity{}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return keys, nil
	}
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		key, rest, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("invalid static key entry %q: expected key:label:role|role", entry)
		}
		label, roleSpec, ok := strings.Cut(rest, ":")
		if !ok || strings.Contains(roleSpec, ":") {
			return nil, fmt.Errorf("invalid static key entry %q: expected key:label:role|role", entry)
		}
		key = strings.TrimSpace(key)
		label = strings.TrimSpace(label)
		if key == "" || label == "" {
			return nil, fmt.Errorf("invalid static key entry %q: empty key/label", entry)
		}
		if _, dup := keys[key]; dup {
			return nil, fmt.Errorf("invalid static key entry %q: duplicate key", entry)
		}
		roles := splitRoles(roleSpec)
		if len(roles) == 0 {
			return nil, fmt.Errorf("invalid static key entry %q: at least one role is required", entry)
		}
		keys[key] = Identity{Label: label, Roles: roles}
	}
	return keys, nil
}

func splitRoles(spec string) []string {
	var roles []string
	for _, role := range strings.Split(spec, "|") {
		if role = strings.TrimSpace(role); role != "" {
			roles = append(roles, role)
		}
	}
	sort.Strings(roles)
	return roles
}
