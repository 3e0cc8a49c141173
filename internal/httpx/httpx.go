// Package httpx holds the JSON request/response helpers shared by the HTTP handlers.
package httpx

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"

	"libraengage/internal/domain"
	"libraengage/internal/store"
)

// IdempotencyHeader carries the event id of a ledger-affecting request.
const IdempotencyHeader = "Idempotency-Key"

// Error codes in response bodies.
const (
	CodeBadRequest          = "BAD_REQUEST"
	CodeValidationFailed    = "VALIDATION_FAILED"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeNotFound            = "NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodePreconditionFailed  = "PRECONDITION_FAILED"
	CodeInternalServerError = "INTERNAL_SERVER_ERROR"
)

var (
	json     = jsoniter.ConfigCompatibleWithStandardLibrary
	validate = newValidator()
)

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// APIError is the body of every failed response, under the "error" key.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// WriteError maps err to a status code and writes an APIError.
func WriteError(w http.ResponseWriter, err error) {
	status, body := toAPIError(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
	}
	WriteJSON(w, status, map[string]APIError{"error": body})
}

func toAPIError(err error) (int, APIError) {
	var de *domain.Error
	if errors.As(err, &de) {
		status, code := statusFor(de.Kind)
		return status, APIError{Code: code, Message: de.Message, Details: de.Details}
	}
	if errors.Is(err, store.ErrSerialization) {
		return http.StatusConflict, APIError{Code: CodeConflict, Message: "the request conflicted with a concurrent update, retry it"}
	}
	return http.StatusInternalServerError, APIError{Code: CodeInternalServerError, Message: "internal server error"}
}

func statusFor(kind domain.Kind) (int, string) {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound, CodeNotFound
	case domain.KindConflict:
		return http.StatusConflict, CodeConflict
	case domain.KindPreconditionFailed:
		return http.StatusPreconditionFailed, CodePreconditionFailed
	case domain.KindInvalidArgument:
		return http.StatusBadRequest, CodeValidationFailed
	case domain.KindUnauthorized:
		return http.StatusUnauthorized, CodeUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden, CodeForbidden
	}
	return http.StatusInternalServerError, CodeInternalServerError
}

// Decode reads a JSON body into dst and validates its `validate` struct tags.
func Decode(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return domain.InvalidArgument("failed to read request body")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return domain.InvalidArgument("malformed JSON body: %v", err)
	}
	return Validate(dst)
}

// Validate checks dst's `validate` tags, reporting each failing field in the error details.
func Validate(dst any) error {
	err := validate.Struct(dst)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return domain.InvalidArgument("invalid request: %v", err)
	}
	de := domain.InvalidArgument("request validation failed")
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		de.WithDetail(fe.Field(), rule)
	}
	return de
}

// IdempotencyKey returns the request's event id, or uuid.Nil if the header is absent.
func IdempotencyKey(r *http.Request) (uuid.UUID, error) {
	raw := r.Header.Get(IdempotencyHeader)
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, domain.InvalidArgument("%s must be a UUID", IdempotencyHeader)
	}
	return id, nil
}

// PathInt parses an integer URL parameter.
func PathInt(r *http.Request, name string) (int, error) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		return 0, domain.InvalidArgument("%s must be an integer", name)
	}
	return v, nil
}

// QueryInt parses an optional integer query parameter.
func QueryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.InvalidArgument("%s must be an integer", name)
	}
	return v, nil
}

// PathUUID parses a UUID URL parameter.
func PathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, domain.InvalidArgument("%s must be a UUID", name)
	}
	return id, nil
}

// NotFound is the router's fallback handler.
func NotFound(w http.ResponseWriter, r *http.Request) {
	WriteError(w, domain.NotFound("no route for %s", fmt.Sprintf("%s %s", r.Method, r.URL.Path)))
}
