// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

// Package clierr provides error classification and user-friendly error formatting for the CLI.
// It helps distinguish between different error types and provides actionable hints.
package clierr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/cipl-app/xlimport/internal/importsvc"
	"github.com/cipl-app/xlimport/pkg/attach"
	"github.com/cipl-app/xlimport/pkg/frappe"
)

// Common error types for CLI output.
const (
	TypeNotFound   = "not_found"  // Doctype, mapping or file not found
	TypeForbidden  = "forbidden"  // Missing or rejected credentials
	TypeNetwork    = "network"    // Connection/network errors
	TypeInternal   = "internal"   // Internal/unexpected errors
	TypeValidation = "validation" // Input or server-side validation errors
)

// IsForbidden checks if the error is an authentication or permission error.
func IsForbidden(err error) bool {
	if err == nil {
		return false
	}
	if apiErr, ok := frappe.AsAPIError(err); ok {
		switch apiErr.ExcType {
		case "PermissionError", "AuthenticationError", "CSRFTokenError":
			return true
		}
		return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "forbidden") ||
		strings.Contains(msg, "not permitted") ||
		strings.Contains(msg, "unauthorized")
}

// IsNotFound checks if the error indicates a missing doctype, mapping or file.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if apiErr, ok := frappe.AsAPIError(err); ok {
		return apiErr.ExcType == "DoesNotExistError" || apiErr.StatusCode == http.StatusNotFound
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") ||
		strings.Contains(msg, "does not exist") ||
		strings.Contains(msg, "no such file")
}

// IsNetworkError checks if the error is a connection/network error.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var modeErr *frappe.ModeError
	if errors.As(err, &modeErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "network is unreachable") ||
		strings.Contains(msg, "dial tcp") ||
		strings.Contains(msg, "i/o timeout") ||
		strings.Contains(msg, "context deadline exceeded")
}

// IsValidation checks if the error reports bad input rather than a failure.
func IsValidation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, attach.ErrUnsupportedFormat) || errors.Is(err, importsvc.ErrInvalidState) {
		return true
	}
	if apiErr, ok := frappe.AsAPIError(err); ok {
		switch apiErr.ExcType {
		case "ValidationError", "MandatoryError", "LinkValidationError", "DuplicateEntryError":
			return true
		}
		return apiErr.StatusCode == http.StatusExpectationFailed
	}
	var verr *importsvc.ValidationError
	var serr *importsvc.SubmissionError
	return (errors.As(err, &verr) && verr.Err == nil) || (errors.As(err, &serr) && serr.Err == nil)
}

// ClassifyError determines the type of error for appropriate handling.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}
	if IsForbidden(err) {
		return TypeForbidden
	}
	if IsNotFound(err) {
		return TypeNotFound
	}
	if IsNetworkError(err) {
		return TypeNetwork
	}
	if IsValidation(err) {
		return TypeValidation
	}
	return TypeInternal
}

// Pretty formats an error with a user-friendly message and actionable hints.
func Pretty(err error) string {
	if err == nil {
		return ""
	}

	errType := ClassifyError(err)
	baseMsg := err.Error()

	switch errType {
	case TypeForbidden:
		return fmt.Sprintf("Access denied: %s\n\nHint: Check your API credentials:\n"+
			"  - xlimport login --key <api key> --secret <api secret>\n"+
			"  - or set FRAPPE_API_KEY and FRAPPE_API_SECRET\n"+
			"  - the user also needs import rights on the target doctype", baseMsg)

	case TypeNotFound:
		if mentionsMapping(baseMsg) {
			return mappingHint("Mapping not found", baseMsg)
		}
		return fmt.Sprintf("Not found: %s", baseMsg)

	case TypeNetwork:
		return fmt.Sprintf("Connection error: %s\n\nHint: Check your site connectivity:\n"+
			"  - xlimport status to verify connection\n"+
			"  - Ensure --site or FRAPPE_URL points at the site", baseMsg)

	case TypeValidation:
		if mentionsMapping(baseMsg) {
			return mappingHint("No field mapping", baseMsg)
		}
		return fmt.Sprintf("Invalid: %s", baseMsg)

	default:
		return fmt.Sprintf("Error: %s", baseMsg)
	}
}

func mentionsMapping(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "mapping") || strings.Contains(msg, "map fields")
}

func mappingHint(title, msg string) string {
	return fmt.Sprintf("%s: %s\n\nHint: Create an excel_field_mapping record for this doctype first.\n"+
		"  - xlimport fields <doctype> lists the target field names", title, msg)
}

// WrapWithHint wraps an error with an additional hint message.
func WrapWithHint(err error, hint string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w\n\nHint: %s", err, hint)
}

// NothingFound returns a user-friendly message when a query returns no results.
// This is different from an error - it's a valid "empty" result.
func NothingFound(resource string) string {
	return fmt.Sprintf("No %s found matching your criteria.\n\n"+
		"This might mean:\n"+
		"  - The search text is too restrictive\n"+
		"  - You may not have permission to read these records", resource)
}
