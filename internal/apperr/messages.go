// Package apperr maps technical errors to user-facing messages with codes.
//
// # Error Codes Reference
//
// When users encounter errors, they can quote the error code to support staff
// for faster diagnosis. Codes are grouped by category:
//
// # Store Errors (STORE001-STORE099)
//
//	STORE001 - Record not found: The record no longer exists
//	           Patterns: "record not found"
//	STORE002 - Duplicate: A record with this ID already exists
//	           Patterns: "duplicate key", "conditionalcheckfailed"
//	STORE003 - Connection refused: Unable to reach the document store
//	           Patterns: "connection refused", "no such host"
//	STORE004 - Connection reset: The store connection was interrupted
//	           Patterns: "connection reset"
//	STORE005 - Throttled: The store is throttling requests
//	           Patterns: "throughput exceeded", "throttl"
//	STORE006 - Timeout: Operation timed out
//	           Patterns: "timeout"
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Required field: A required field is empty
//	         Patterns: "required field"
//	VAL002 - Unknown field: The edited column does not exist
//	         Patterns: "unknown field"
//	VAL003 - Invalid query: The search or filter could not be parsed
//	         Patterns: "invalid query"
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large
//	          Patterns: "file too large", "request body too large"
//	FILE002 - Unsupported type: Only spreadsheet files can be imported
//	          Patterns: "unsupported media type"
//	FILE003 - Missing columns: Required headers are absent
//	          Patterns: "missing required column"
//	FILE004 - No data: The sheet has a header row but no data rows
//	          Patterns: "no data rows"
//	FILE005 - Unreadable: The spreadsheet could not be read
//	          Patterns: "read spreadsheet"
//	FILE006 - No file: No file was selected
//	          Patterns: "no file provided"
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - Import cancelled
//	         Patterns: "import cancelled"
//	IMP002 - Import already running
//	         Patterns: "import already running"
//	IMP003 - Staged import expired
//	         Patterns: "staged import not found"
//	IMP004 - Unknown strategy
//	         Patterns: "upload option not provided"
//	IMP005 - Request cancelled
//	         Patterns: "context canceled"
//	IMP006 - Request timeout
//	         Patterns: "context deadline exceeded"
//
// # Rate Limiting (RATE001-RATE099)
//
//	RATE001 - Rate limited: Too many requests
//	          Patterns: "rate limit"
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//
// Errors that carry their own UserMessage (see Coded) take precedence over
// pattern matching. Patterns are matched case-insensitively using
// strings.Contains and the first match wins.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened (user-friendly)
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
}

// Coded is implemented by errors that already know their user message.
type Coded interface {
	error
	UserMessage() UserMessage
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// More specific patterns come before general ones.
var errorPatterns = []errorPattern{
	// =========================================================================
	// Store Errors (STORE001-STORE006)
	// =========================================================================
	{
		pattern: "record not found",
		msg: UserMessage{
			Message: "The record no longer exists",
			Action:  "Refresh the list and try again",
			Code:    "STORE001",
		},
	},
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this ID already exists",
			Action:  "Retry the operation",
			Code:    "STORE002",
		},
	},
	{
		pattern: "conditionalcheckfailed",
		msg: UserMessage{
			Message: "A record with this ID already exists",
			Action:  "Retry the operation",
			Code:    "STORE002",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to reach the document store",
			Action:  "Please try again in a few moments",
			Code:    "STORE003",
		},
	},
	{
		pattern: "no such host",
		msg: UserMessage{
			Message: "Unable to reach the document store",
			Action:  "Check STORE_ENDPOINT",
			Code:    "STORE003",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "The document store connection was interrupted",
			Action:  "Please try again",
			Code:    "STORE004",
		},
	},
	{
		pattern: "throughput exceeded",
		msg: UserMessage{
			Message: "The document store is throttling requests",
			Action:  "Wait a moment and retry with a smaller batch",
			Code:    "STORE005",
		},
	},
	{
		pattern: "throttl",
		msg: UserMessage{
			Message: "The document store is throttling requests",
			Action:  "Wait a moment and retry with a smaller batch",
			Code:    "STORE005",
		},
	},

	// =========================================================================
	// Import Errors (IMP001-IMP006)
	// Listed before "timeout" so deadline errors keep their own code.
	// =========================================================================
	{
		pattern: "import cancelled",
		msg: UserMessage{
			Message: "Import was cancelled",
			Action:  "Start a new import when ready",
			Code:    "IMP001",
		},
	},
	{
		pattern: "import already running",
		msg: UserMessage{
			Message: "Another import is still running",
			Action:  "Wait for it to finish or cancel it",
			Code:    "IMP002",
		},
	},
	{
		pattern: "staged import not found",
		msg: UserMessage{
			Message: "The staged import has expired",
			Action:  "Upload the file again",
			Code:    "IMP003",
		},
	},
	{
		pattern: "upload option not provided",
		msg: UserMessage{
			Message: "Import option not selected",
			Action:  "Choose whether to add rows or replace the archive",
			Code:    "IMP004",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "IMP005",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try again with a smaller file",
			Code:    "IMP006",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try again later",
			Code:    "STORE006",
		},
	},

	// =========================================================================
	// Validation Errors (VAL001-VAL003)
	// =========================================================================
	{
		pattern: "required field",
		msg: UserMessage{
			Message: "A required field is empty",
			Action:  "Fill in every field",
			Code:    "VAL001",
		},
	},
	{
		pattern: "unknown field",
		msg: UserMessage{
			Message: "The column does not exist",
			Action:  "Edit one of the five archive columns",
			Code:    "VAL002",
		},
	},
	{
		pattern: "invalid query",
		msg: UserMessage{
			Message: "The search could not be understood",
			Action:  "Clear the filter and try again",
			Code:    "VAL003",
		},
	},

	// =========================================================================
	// File Errors (FILE001-FILE006)
	// =========================================================================
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the spreadsheet into smaller files",
			Code:    "FILE001",
		},
	},
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the spreadsheet into smaller files",
			Code:    "FILE001",
		},
	},
	{
		pattern: "unsupported media type",
		msg: UserMessage{
			Message: "Faqatgina Excel fayllarini yuklash mumkin",
			Action:  "Upload an .xls, .xlsx or .csv file",
			Code:    "FILE002",
		},
	},
	{
		pattern: "missing required column",
		msg: UserMessage{
			Message: "Faylda noto'g'ri ustunlar mavjud. Iltimos, quyidagi ustunlarni tekshiring: T/R, TALABNOMA RAQAMI, SHKAF, POLKA, TOPLAM",
			Action:  "Fix the header row and upload again",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no data rows",
		msg: UserMessage{
			Message: "Faylda ma'lumotlar mavjud emas",
			Action:  "Add rows below the header and upload again",
			Code:    "FILE004",
		},
	},
	{
		pattern: "read spreadsheet",
		msg: UserMessage{
			Message: "Excel faylni o'qishda xatolik yuz berdi",
			Action:  "Re-save the file and upload again",
			Code:    "FILE005",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a spreadsheet to upload",
			Code:    "FILE006",
		},
	},

	// =========================================================================
	// Rate Limiting (RATE001)
	// =========================================================================
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Coded errors anywhere in the chain win; otherwise the first matching
// pattern is used, falling back to ERR000.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var coded Coded
	if errors.As(err, &coded) {
		return coded.UserMessage()
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
