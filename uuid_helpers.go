package auth

import "github.com/google/uuid"

// ParseIdentityRef parses an identity ref, rejecting the nil UUID
func ParseIdentityRef(raw string) (uuid.UUID, error) {
	ref, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, Derive(ErrInvalidArguments, "invalid identity reference", err).
			WithMetadata(map[string]any{"identityRef": raw})
	}
	if ref == uuid.Nil {
		return uuid.Nil, Derive(ErrInvalidArguments, "invalid identity reference", nil)
	}
	return ref, nil
}
