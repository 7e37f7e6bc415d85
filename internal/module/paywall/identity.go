package paywall

import "strings"

// Identity correlates usage records and payment credits for one
// request. DeviceIDs carries both the device id and the guest id,
// normalized into a deduplicated set.
type Identity struct {
	UserID    string
	DeviceIDs []string
	ClientIP  string
}

// NewIdentity builds a normalized identity. Device identifiers are
// trimmed, deduplicated and stripped of empties; order is preserved.
func NewIdentity(userID, clientIP string, deviceIDs ...string) Identity {
	normalized := make([]string, 0, len(deviceIDs))
	seen := make(map[string]struct{}, len(deviceIDs))
	for _, id := range deviceIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		normalized = append(normalized, id)
	}
	return Identity{
		UserID:    strings.TrimSpace(userID),
		DeviceIDs: normalized,
		ClientIP:  strings.TrimSpace(clientIP),
	}
}

// IsEmpty reports whether the identity has no user id and no device
// ids. An empty identity must never produce an unfiltered table scan.
func (i Identity) IsEmpty() bool {
	return i.UserID == "" && len(i.DeviceIDs) == 0
}

// HasDevice reports whether id is one of the identity's device ids.
func (i Identity) HasDevice(id string) bool {
	for _, d := range i.DeviceIDs {
		if d == id {
			return true
		}
	}
	return false
}
