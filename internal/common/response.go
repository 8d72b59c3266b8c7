package common

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
)

// ErrorBody represents a consistent error payload returned by the API.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Envelope is the response shape shared by every JSON endpoint.
type Envelope struct {
	Success    bool        `json:"success"`
	Msg        string      `json:"msg,omitempty"`
	Data       any         `json:"data,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Error      *ErrorBody  `json:"error,omitempty"`
}

// JSON writes the provided value to the response writer as JSON.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Success renders a successful envelope.
func Success(w http.ResponseWriter, status int, msg string, data any) {
	JSON(w, status, Envelope{Success: true, Msg: msg, Data: data})
}

// SuccessPage renders a successful envelope with pagination metadata.
func SuccessPage(w http.ResponseWriter, msg string, data any, page Pagination) {
	JSON(w, http.StatusOK, Envelope{Success: true, Msg: msg, Data: data, Pagination: &page})
}

// JSONError renders an error response using the canonical error shape.
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, Envelope{
		Success: false,
		Msg:     message,
		Error: &ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// WriteError maps err onto the error envelope. Non-AppErrors are logged through
// the request logger and reported as 500.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		code := appErr.Code
		if code == "" {
			code = "INTERNAL"
		}
		message := appErr.Message
		if message == "" {
			message = "internal error"
		}
		if status >= http.StatusInternalServerError {
			logFromRequest(r).Error().Err(err).Str("code", code).Msg("request failed")
		}
		JSONError(w, status, code, message, appErr.Details)
		return
	}
	logFromRequest(r).Error().Err(err).Msg("request failed")
	JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}

// DecodeJSON decodes the request body into dst, rejecting unknown trailing data.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return NewAppError("BAD_REQUEST", "invalid request payload", http.StatusBadRequest, nil)
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		appErr := NewAppError("BAD_REQUEST", "invalid request payload", http.StatusBadRequest, err)
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			appErr.Details = map[string]any{"offset": syntaxErr.Offset}
		}
		return appErr
	}
	return nil
}

func logFromRequest(r *http.Request) *zerolog.Logger {
	if r == nil {
		l := zerolog.Nop()
		return &l
	}
	return zerolog.Ctx(r.Context())
}
