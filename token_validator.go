package auth

import "github.com/goliatone/go-taskauth/middleware/jwtware"

// Verification is the tagged result of verifying an access token
type Verification = jwtware.Verification

// VerificationStatus is one of VerificationValid, VerificationExpired
// or VerificationMalformed
type VerificationStatus = jwtware.VerificationStatus

const (
	VerificationMalformed = jwtware.VerificationMalformed
	VerificationValid     = jwtware.VerificationValid
	VerificationExpired   = jwtware.VerificationExpired
)

// TokenVerifier verifies raw access tokens
type TokenVerifier = jwtware.TokenVerifier

func malformed(err error) Verification {
	return Verification{
		Status: VerificationMalformed,
		Err:    Derive(ErrTokenMalformed, "", err),
	}
}

// VerificationError converts a non valid verification into the
// matching package error.
func VerificationError(v Verification) error {
	switch v.Status {
	case VerificationValid:
		return nil
	case VerificationExpired:
		return Derive(ErrTokenExpired, "", v.Err)
	default:
		if v.Err != nil {
			return AsError(v.Err)
		}
		return ErrTokenMalformed
	}
}
