package token

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultKeyID names the key built from a bare JWT_SECRET.
const DefaultKeyID = "default"

// KeySet holds the HMAC keys that may verify tokens and the one used to sign new ones.
type KeySet struct {
	keys   map[string][]byte
	active string
}

func NewKeySet(secrets map[string]string, activeID string) (*KeySet, error) {
	if len(secrets) == 0 {
		return nil, fmt.Errorf("at least one signing key is required")
	}

	keys := make(map[string][]byte, len(secrets))
	for id, secret := range secrets {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, fmt.Errorf("signing key id cannot be empty")
		}
		if strings.TrimSpace(secret) == "" {
			return nil, fmt.Errorf("signing key %q has an empty secret", id)
		}
		keys[id] = []byte(secret)
	}

	activeID = strings.TrimSpace(activeID)
	if activeID == "" {
		if len(keys) != 1 {
			return nil, fmt.Errorf("active key id is required when more than one signing key is configured")
		}
		for id := range keys {
			activeID = id
		}
	}

	if _, ok := keys[activeID]; !ok {
		return nil, fmt.Errorf("active key id %q is not among the configured signing keys", activeID)
	}

	return &KeySet{keys: keys, active: activeID}, nil
}

// ParseKeySpec reads "kid1:secret1,kid2:secret2".
func ParseKeySpec(raw string) (map[string]string, error) {
	out := map[string]string{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		id, secret, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("signing key entry %q must be in kid:secret form", part)
		}

		id = strings.TrimSpace(id)
		if _, dup := out[id]; dup {
			return nil, fmt.Errorf("signing key id %q is configured twice", id)
		}
		out[id] = strings.TrimSpace(secret)
	}

	return out, nil
}

func (k *KeySet) ActiveID() string {
	return k.active
}

// IDs returns the configured key ids in sorted order.
func (k *KeySet) IDs() []string {
	ids := make([]string, 0, len(k.keys))
	for id := range k.keys {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (k *KeySet) lookup(id string) ([]byte, bool) {
	key, ok := k.keys[id]
	return key, ok
}
