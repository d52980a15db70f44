package auth

import (
	"errors"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
)

// Error is the structured error returned by every operation in the package
type Error = goerrors.Error

const (
	TextCodeInvalidCreds      = "INVALID_CREDENTIALS"
	TextCodeTokenMissing      = "TOKEN_MISSING"
	TextCodeTokenInvalid      = "TOKEN_INVALID"
	TextCodeTokenExpired      = "TOKEN_EXPIRED"
	TextCodeNotFound          = "RESOURCE_NOT_FOUND"
	TextCodeAlreadyExists     = "RESOURCE_ALREADY_EXISTS"
	TextCodePermissionDenied  = "PERMISSION_DENIED"
	TextCodeForbidden         = "FORBIDDEN"
	TextCodeInvalidArguments  = "INVALID_ARGUMENTS"
	TextCodeAccountInactive   = "ACCOUNT_INACTIVE"
	TextCodeInvalidTransition = "INVALID_TRANSITION"
	TextCodeEmptyPassword     = "EMPTY_PASSWORD"
	TextCodeInternal          = "INTERNAL_ERROR"
)

var (
	// ErrInvalidCredentials is returned for unknown emails and wrong passwords alike
	ErrInvalidCredentials = goerrors.New("Invalid email address or password", goerrors.CategoryAuth).
				WithTextCode(TextCodeInvalidCreds).
				WithCode(goerrors.CodeUnauthorized)

	ErrTokenMissing = goerrors.New("missing or malformed authorization header", goerrors.CategoryAuth).
			WithTextCode(TextCodeTokenMissing).
			WithCode(goerrors.CodeForbidden)

	ErrTokenMalformed = goerrors.New("invalid token", goerrors.CategoryAuth).
				WithTextCode(TextCodeTokenInvalid).
				WithCode(goerrors.CodeForbidden)

	// ErrTokenInvalid is returned by the refresh flow
	ErrTokenInvalid = ErrTokenMalformed

	// ErrTokenExpired signals the client to use the refresh flow
	ErrTokenExpired = goerrors.New("token has expired", goerrors.CategoryAuth).
			WithTextCode(TextCodeTokenExpired).
			WithCode(goerrors.CodeUnauthorized)

	ErrResourceNotFound = goerrors.New("resource not found", goerrors.CategoryNotFound).
				WithTextCode(TextCodeNotFound).
				WithCode(goerrors.CodeNotFound)

	ErrResourceAlreadyExists = goerrors.New("resource already exists", goerrors.CategoryConflict).
					WithTextCode(TextCodeAlreadyExists).
					WithCode(goerrors.CodeConflict)

	ErrPermissionDenied = goerrors.New("permission denied", goerrors.CategoryAuthz).
				WithTextCode(TextCodePermissionDenied).
				WithCode(goerrors.CodeForbidden)

	ErrForbidden = goerrors.New("access to this resource is forbidden", goerrors.CategoryAuthz).
			WithTextCode(TextCodeForbidden).
			WithCode(goerrors.CodeForbidden)

	ErrInvalidArguments = goerrors.New("invalid arguments", goerrors.CategoryValidation).
				WithTextCode(TextCodeInvalidArguments).
				WithCode(goerrors.CodeBadRequest)

	ErrAccountInactive = goerrors.New("account is inactive", goerrors.CategoryAuthz).
				WithTextCode(TextCodeAccountInactive).
				WithCode(goerrors.CodeForbidden)

	ErrInvalidTransition = goerrors.New("invalid account status transition", goerrors.CategoryConflict).
				WithTextCode(TextCodeInvalidTransition).
				WithCode(goerrors.CodeConflict)

	ErrInternal = goerrors.New("internal server error", goerrors.CategoryInternal).
			WithTextCode(TextCodeInternal).
			WithCode(goerrors.CodeInternal)

	// ErrMismatchedHashAndPassword is returned by the hasher on mismatch
	ErrMismatchedHashAndPassword = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
					WithTextCode(TextCodeInvalidCreds).
					WithCode(goerrors.CodeUnauthorized)

	ErrNoEmptyString = goerrors.New("password can not be empty", goerrors.CategoryValidation).
				WithTextCode(TextCodeEmptyPassword).
				WithCode(goerrors.CodeBadRequest)
)

// Derive returns a new error carrying the category, code and text code
// of base. errors.Is matches it against base and against cause. An
// empty message keeps the message of base. Sentinels are never mutated.
func Derive(base *Error, message string, cause error) *Error {
	if message == "" {
		message = base.Message
	}

	// the join keeps base out of reach of Wrap so it is never modified
	return goerrors.Wrap(errors.Join(base, cause), base.Category, message).
		WithTextCode(base.TextCode).
		WithCode(base.Code)
}

// DeriveWithMetadata is Derive with metadata attached to the new error
func DeriveWithMetadata(base *Error, message string, md map[string]any) *Error {
	return Derive(base, message, nil).WithMetadata(md)
}

// AsError returns err as a structured error. Errors that are not
// structured become internal errors. Structured errors without a status
// or text code get them from their category.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if !goerrors.As(err, &e) {
		return Derive(ErrInternal, "", err)
	}

	if e.Code != 0 && e.TextCode != "" {
		return e
	}

	code, textCode := e.Code, e.TextCode
	if code == 0 {
		code = statusForCategory(e.Category)
	}
	if textCode == "" {
		textCode = statusTextCode(code)
	}
	return goerrors.Wrap(errors.Join(e), e.Category, e.Message).
		WithTextCode(textCode).
		WithCode(code)
}

// HasTextCode reports whether err is a structured error sharing the text
// code of base
func HasTextCode(err error, base *Error) bool {
	var e *Error
	if !goerrors.As(err, &e) {
		return false
	}
	return e.TextCode == base.TextCode
}

// IsTokenExpiredError reports whether err is an expired token error
func IsTokenExpiredError(err error) bool {
	return HasTextCode(err, ErrTokenExpired)
}

// IsMalformedError reports whether err is a malformed token error
func IsMalformedError(err error) bool {
	return HasTextCode(err, ErrTokenMalformed)
}

// IsNotFound reports whether err is a not found error, including the
// record not found errors of the repositories
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	return HasTextCode(err, ErrResourceNotFound) || repository.IsRecordNotFound(err)
}

func statusForCategory(c goerrors.Category) int {
	switch c {
	case goerrors.CategoryAuth:
		return goerrors.CodeUnauthorized
	case goerrors.CategoryAuthz:
		return goerrors.CodeForbidden
	case goerrors.CategoryNotFound:
		return goerrors.CodeNotFound
	case goerrors.CategoryConflict:
		return goerrors.CodeConflict
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return goerrors.CodeBadRequest
	default:
		return goerrors.CodeInternal
	}
}
