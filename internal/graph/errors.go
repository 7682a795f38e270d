package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error is the error object returned by the ads graph API.
type Error struct {
	HTTPStatus int    `json:"-"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       int    `json:"code"`
	Subcode    int    `json:"error_subcode"`
	TraceID    string `json:"fbtrace_id"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("graph error %d (%s, http %d): %s", e.Code, e.Type, e.HTTPStatus, e.Message)
}

func parseError(status int, body []byte) error {
	var env struct {
		Error *Error `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil || env.Error == nil {
		return &Error{HTTPStatus: status, Message: http.StatusText(status)}
	}
	env.Error.HTTPStatus = status
	return env.Error
}

func asGraphError(err error) (*Error, bool) {
	var ge *Error
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// IsAuthError reports an invalid or expired access token.
func IsAuthError(err error) bool {
	ge, ok := asGraphError(err)
	if !ok {
		return false
	}
	return ge.Code == 190 || ge.Code == 102 || ge.HTTPStatus == http.StatusUnauthorized
}

// IsPermissionError reports an OAuth or permission-denied rejection, where the
// token is valid but may not read the object.
func IsPermissionError(err error) bool {
	ge, ok := asGraphError(err)
	if !ok {
		return false
	}
	switch {
	case ge.Code == 10, ge.Code >= 200 && ge.Code <= 299:
		return true
	case ge.Type == "OAuthException" && ge.Code != 190:
		return true
	}
	return false
}

// IsUnsupportedField reports the invalid-parameter signature returned when a
// requested field or filter is not available for the account.
func IsUnsupportedField(err error) bool {
	ge, ok := asGraphError(err)
	return ok && ge.Code == 100
}
