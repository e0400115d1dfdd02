// Package errors defines error codes and categories for relayhub
package errors

import "net/http"

// Error Categories
const (
	// Input Errors (INP)
	InputCategory = "INP"

	// Configuration Errors (CON)
	ConfigurationCategory = "CON"

	// Enrichment Errors (ENR)
	EnrichmentCategory = "ENR"

	// Attachment Errors (ATT)
	AttachmentCategory = "ATT"

	// Destination Errors (DST)
	DestinationCategory = "DST"

	// System Errors (SYS)
	SystemCategory = "SYS"
)

// Input Error Codes
const (
	ErrMalformedInput Code = "INP001" // Request body is not structured data
	ErrBodyTooLarge   Code = "INP002" // Request body exceeds the accepted size
)

// Configuration Error Codes
const (
	ErrInvalidConfig        Code = "CON001" // Invalid configuration
	ErrConfigurationMissing Code = "CON002" // Required transport credential or destination absent
)

// Enrichment Error Codes
const (
	ErrEnrichmentUnavailable Code = "ENR001" // Origin lookup failed or timed out
)

// Attachment Error Codes
const (
	ErrAttachmentUndecodable    Code = "ATT001" // Embedded image could not be decoded
	ErrAttachmentOutOfBounds    Code = "ATT002" // Decoded image below floor or above ceiling
	ErrAttachmentDeliveryFailed Code = "ATT003" // Photo and document uploads both rejected
)

// Destination Error Codes
const (
	ErrDestinationSendFailed Code = "DST001" // Summary text could not be delivered
)

// System Error Codes
const (
	ErrInternalError Code = "SYS002" // Internal system error
)

// ErrorInfo contains metadata about error codes
type ErrorInfo struct {
	Code        Code   `json:"code"`
	Category    string `json:"category"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Fatal       bool   `json:"fatal"`
	HTTPStatus  int    `json:"http_status"`
}

var errorInfoMap = map[Code]ErrorInfo{
	ErrMalformedInput: {ErrMalformedInput, InputCategory, "ERROR", "Request body is not valid structured data", true, http.StatusBadRequest},
	ErrBodyTooLarge:   {ErrBodyTooLarge, InputCategory, "ERROR", "Request body too large", true, http.StatusRequestEntityTooLarge},

	ErrInvalidConfig:        {ErrInvalidConfig, ConfigurationCategory, "ERROR", "Invalid configuration provided", true, http.StatusInternalServerError},
	ErrConfigurationMissing: {ErrConfigurationMissing, ConfigurationCategory, "ERROR", "Server configuration missing", true, http.StatusInternalServerError},

	ErrEnrichmentUnavailable: {ErrEnrichmentUnavailable, EnrichmentCategory, "WARN", "Origin enrichment unavailable", false, http.StatusOK},

	ErrAttachmentUndecodable:    {ErrAttachmentUndecodable, AttachmentCategory, "WARN", "Attachment could not be decoded", false, http.StatusOK},
	ErrAttachmentOutOfBounds:    {ErrAttachmentOutOfBounds, AttachmentCategory, "WARN", "Attachment size outside deliverable bounds", false, http.StatusOK},
	ErrAttachmentDeliveryFailed: {ErrAttachmentDeliveryFailed, AttachmentCategory, "WARN", "Attachment delivery failed", false, http.StatusOK},

	ErrDestinationSendFailed: {ErrDestinationSendFailed, DestinationCategory, "ERROR", "Failed to deliver to destination", false, http.StatusOK},

	ErrInternalError: {ErrInternalError, SystemCategory, "ERROR", "Internal system error", true, http.StatusInternalServerError},
}

// GetErrorInfo returns metadata for a given error code
func GetErrorInfo(code Code) ErrorInfo {
	if info, exists := errorInfoMap[code]; exists {
		return info
	}

	return ErrorInfo{
		Code:        code,
		Category:    "UNKNOWN",
		Severity:    "ERROR",
		Description: "Unknown error code",
		Fatal:       true,
		HTTPStatus:  http.StatusInternalServerError,
	}
}

// IsFatal reports whether an error with this code aborts the request
// before the pipeline starts.
func IsFatal(code Code) bool {
	return GetErrorInfo(code).Fatal
}

// HTTPStatus returns the status an inbound handler should answer with.
func HTTPStatus(code Code) int {
	return GetErrorInfo(code).HTTPStatus
}
