package types

import (
	"errors"
	"fmt"
)

type RequestParam struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// APIError is the body of the {"error": {...}} envelope returned by api.vk.com.
type APIError struct {
	Code          int            `json:"error_code"`
	Message       string         `json:"error_msg"`
	RequestParams []RequestParam `json:"request_params,omitempty"`
}

var (
	ErrUnknown          = &APIError{Code: 1}
	ErrAuthFailed       = &APIError{Code: 5}
	ErrTooManyRequests  = &APIError{Code: 6}
	ErrPermissionDenied = &APIError{Code: 7}
	ErrExecuteFailed    = &APIError{Code: 13}
	ErrAccessDenied     = &APIError{Code: 15}
	ErrInvalidParam     = &APIError{Code: 100}
)

func (ae *APIError) Is(other error) bool {
	var otherAPI *APIError
	return errors.As(other, &otherAPI) && ae.Code == otherAPI.Code
}

func (ae *APIError) Error() string {
	return fmt.Sprintf("vk api error %d: %s", ae.Code, ae.Message)
}

// ExecuteError is one entry of the execute_errors array that accompanies a
// partially failed execute call.
type ExecuteError struct {
	Method  string `json:"method"`
	Code    int    `json:"error_code"`
	Message string `json:"error_msg"`
}

func (ee *ExecuteError) Error() string {
	return fmt.Sprintf("%s failed with %d: %s", ee.Method, ee.Code, ee.Message)
}
