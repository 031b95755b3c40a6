// Copyright (C) 2025 Stationwise (dev@stationwise.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// Error codes carried in the error envelope. These are part of the client
// contract and must stay stable across releases.
const (
	CodeInvalidParameter = "INVALID_PARAMETER"
	CodeRateLimited      = "RATE_LIMITED"
	CodeConfigError      = "CONFIG_ERROR"
	CodeUpstreamError    = "UPSTREAM_ERROR"
	CodeInternalError    = "INTERNAL_ERROR"
	CodeNotImplemented   = "NOT_IMPLEMENTED"
)

// APIError is the inner error object of the envelope.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorResponse is the uniform error envelope for non-2xx responses.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// NewErrorResponse builds an envelope; details may be nil.
func NewErrorResponse(code, message string, details map[string]any) ErrorResponse {
	return ErrorResponse{Error: APIError{Code: code, Message: message, Details: details}}
}
