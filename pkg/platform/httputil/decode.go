package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	dErrors "piivault/pkg/domain-errors"
)

// Sanitizable is implemented by request types that trim or canonicalize
// their input before validation.
type Sanitizable interface {
	Sanitize()
}

// Validatable is implemented by request types that check their own input.
type Validatable interface {
	Validate() error
}

// PrepareRequest runs Sanitize then Validate on req when implemented.
func PrepareRequest(req any) error {
	if s, ok := req.(Sanitizable); ok {
		s.Sanitize()
	}
	if v, ok := req.(Validatable); ok {
		return v.Validate()
	}
	return nil
}

// DecodeAndPrepare decodes a JSON body into T and prepares it. On failure it
// writes the error response and returns nil, false.
//
// Unknown fields are rejected so a misspelled or unexpected PII attribute
// never gets dropped silently.
//
//	req, ok := httputil.DecodeAndPrepare[GrantRequest](w, r, h.logger, ctx, requestID)
//	if !ok {
//	    return
//	}
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	return decodeAndPrepare[T](w, r, logger, ctx, requestID, false)
}

// DecodeOptionalAndPrepare is DecodeAndPrepare for endpoints whose body may
// be omitted. An empty body yields nil, true whatever the Content-Length
// header says, so chunked requests are decoded like sized ones.
func DecodeOptionalAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, true
	}
	return decodeAndPrepare[T](w, r, logger, ctx, requestID, true)
}

func decodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string, optional bool) (*T, bool) {
	var req T
	if err := decodeStrict(r.Body, &req); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil, true
		}
		// The decoder error can quote body fragments, so only its class is logged.
		logger.WarnContext(ctx, "failed to decode request body",
			"reason", decodeFailureReason(err),
			"request_id", requestID,
		)
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, decodeFailureReason(err)))
		return nil, false
	}

	if err := PrepareRequest(&req); err != nil {
		logger.WarnContext(ctx, "invalid request",
			"error", err,
			"request_id", requestID,
		)
		var domainErr *dErrors.Error
		if errors.As(err, &domainErr) {
			WriteError(w, err)
		} else {
			WriteError(w, dErrors.New(dErrors.CodeValidation, err.Error()))
		}
		return nil, false
	}
	return &req, true
}

var errTrailingData = errors.New("trailing data after JSON body")

func decodeStrict(body io.Reader, dst any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errTrailingData
	}
	return nil
}

func decodeFailureReason(err error) string {
	var maxErr *http.MaxBytesError
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, io.EOF):
		return "request body is required"
	case errors.As(err, &maxErr):
		return "request body too large"
	case errors.Is(err, errTrailingData):
		return "request body must contain a single JSON object"
	case errors.As(err, &typeErr):
		return "field " + typeErr.Field + " has the wrong type"
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return "malformed JSON"
	default:
		// json reports unknown fields as a plain error naming the field.
		return "invalid request body"
	}
}
