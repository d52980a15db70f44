package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-taskauth/middleware/jwtware"
)

// ProblemContentType is the media type of every error body
const ProblemContentType = "application/problem+json"

// ProblemDetail is the error body returned by every route
type ProblemDetail struct {
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Detail    string            `json:"detail"`
	Status    int               `json:"status"`
	Code      string            `json:"code"`
	Path      string            `json:"path"`
	Instance  string            `json:"instance"`
	Timestamp time.Time         `json:"timestamp"`
	Refresh   bool              `json:"refresh,omitempty"`
	Errors    map[string]string `json:"errors,omitempty"`
}

// NewProblem builds the problem document for err raised while serving path
func NewProblem(err error, path string, now time.Time) ProblemDetail {
	e := ToProblemError(err)
	status := e.Code
	if status == 0 {
		status = http.StatusInternalServerError
	}

	p := ProblemDetail{
		Type:      "urn:problem-type:" + strings.ReplaceAll(strings.ToLower(e.TextCode), "_", "-"),
		Title:     http.StatusText(status),
		Detail:    e.Message,
		Status:    status,
		Code:      e.TextCode,
		Path:      path,
		Instance:  "urn:problem:invoked-by:" + path,
		Timestamp: now.UTC(),
		Refresh:   IsTokenExpiredError(e),
	}

	if fields, ok := e.Metadata["fields"].(map[string]string); ok {
		p.Errors = fields
	}
	return p
}

// ToProblemError normalizes errors raised by handlers, fiber, the gate
// and ozzo-validation into a structured error.
func ToProblemError(err error) *Error {
	if err == nil {
		return ErrInternal
	}

	var e *Error
	if goerrors.As(err, &e) {
		return AsError(e)
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for name, ferr := range verrs {
			fields[name] = ferr.Error()
		}
		return Derive(ErrInvalidArguments, "request validation failed", err).
			WithMetadata(map[string]any{"fields": fields})
	}

	if errors.Is(err, jwtware.ErrJWTMissingOrMalformed) {
		return Derive(ErrTokenMissing, "", err)
	}

	if errors.Is(err, jwtware.ErrJWTInvalid) {
		return Derive(ErrTokenMalformed, "", err)
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return goerrors.New(fe.Message, categoryForStatus(fe.Code)).
			WithTextCode(statusTextCode(fe.Code)).
			WithCode(fe.Code)
	}

	return Derive(ErrInternal, "", err)
}

// ProblemErrorHandler renders every error as a problem document. It is
// used as the fiber app error handler and by the gate. now stamps the
// problem timestamp, time.Now when nil.
func ProblemErrorHandler(logger Logger, now func() time.Time) fiber.ErrorHandler {
	logger = normalizeLogger(logger)
	if now == nil {
		now = time.Now
	}
	return func(c *fiber.Ctx, err error) error {
		return WriteProblem(c, logger, err, now())
	}
}

// WriteProblem writes err to c as a problem document stamped at now
func WriteProblem(c *fiber.Ctx, logger Logger, err error, now time.Time) error {
	p := NewProblem(err, c.Path(), now)

	if p.Status >= http.StatusInternalServerError {
		logger.Error("request failed", "path", p.Path, "code", p.Code, "error", err)
	} else {
		logger.Debug("request rejected", "path", p.Path, "code", p.Code, "status", p.Status)
	}

	if p.Refresh {
		c.Set(HeaderTokenExpired, "true")
	}

	return c.Status(p.Status).JSON(p, ProblemContentType)
}

func statusTextCode(status int) string {
	switch status {
	case http.StatusNotFound:
		return TextCodeNotFound
	case http.StatusBadRequest:
		return TextCodeInvalidArguments
	case http.StatusInternalServerError:
		return TextCodeInternal
	}
	text := http.StatusText(status)
	if text == "" {
		return TextCodeInternal
	}
	return strings.ToUpper(strings.ReplaceAll(text, " ", "_"))
}

func categoryForStatus(status int) goerrors.Category {
	switch {
	case status == http.StatusUnauthorized:
		return goerrors.CategoryAuth
	case status == http.StatusForbidden:
		return goerrors.CategoryAuthz
	case status == http.StatusNotFound:
		return goerrors.CategoryNotFound
	case status == http.StatusConflict:
		return goerrors.CategoryConflict
	case status >= http.StatusInternalServerError:
		return goerrors.CategoryInternal
	default:
		return goerrors.CategoryValidation
	}
}
