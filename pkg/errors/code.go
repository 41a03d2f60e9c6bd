package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 12000-12999: Problem module errors
// 13000-13999: Submission & Judge module errors
// 14000-14999: Problemset & Contest module errors
// 16000-16999: Admin & Permission errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	Forbidden           ErrorCode = 10005
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Database errors (10100-10199)
	DatabaseError       ErrorCode = 10100
	RecordNotFound      ErrorCode = 10101
	RecordAlreadyExists ErrorCode = 10102
	TransactionFailed   ErrorCode = 10103

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200

	// Storage errors (10400-10499)
	StorageError ErrorCode = 10400

	// Validation errors (10300-10399)
	ValidationFailed ErrorCode = 10300
	InvalidValue     ErrorCode = 10302

	// Authentication (11000-11099)
	TokenExpired ErrorCode = 11003
	TokenInvalid ErrorCode = 11004

	// ========== Problem Module Errors (12000-12999) ==========

	ProblemNotFound     ErrorCode = 12000
	ProblemAccessDenied ErrorCode = 12001

	// ========== Submission & Judge Module Errors (13000-13999) ==========

	// Submission (13000-13099)
	SubmissionNotFound     ErrorCode = 13000
	SubmissionCreateFailed ErrorCode = 13001
	LanguageNotSupported   ErrorCode = 13003
	NotAllowedToSubmit     ErrorCode = 13006
	Lockdown               ErrorCode = 13007

	// Judge (13100-13199)
	JudgeSystemError ErrorCode = 13101

	// ========== Problemset & Contest Module Errors (14000-14999) ==========

	ContestNotFound    ErrorCode = 14000
	ProblemsetNotFound ErrorCode = 14010

	// ========== Admin & Permission Errors (16000-16999) ==========

	PermissionDenied ErrorCode = 16000
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized access",
	Forbidden:           "Access forbidden",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	DatabaseError:       "Database operation failed",
	RecordNotFound:      "Record not found in database",
	RecordAlreadyExists: "Record already exists",
	TransactionFailed:   "Database transaction failed",

	CacheError:   "Cache operation failed",
	StorageError: "Object storage operation failed",

	ValidationFailed: "Validation failed",
	InvalidValue:     "Invalid value",

	TokenExpired: "Token has expired",
	TokenInvalid: "Invalid token",

	ProblemNotFound:     "Problem not found",
	ProblemAccessDenied: "Access to this problem is denied",

	SubmissionNotFound:     "Run not found",
	SubmissionCreateFailed: "Failed to create submission",
	LanguageNotSupported:   "Programming language not supported",
	NotAllowedToSubmit:     "Not allowed to submit",
	Lockdown:               "Operation not allowed while lockdown is engaged",

	JudgeSystemError: "Judge system error",

	ContestNotFound:    "Contest not found",
	ProblemsetNotFound: "Problemset not found",

	PermissionDenied: "Permission denied",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == Unauthorized, c == TokenExpired, c == TokenInvalid:
		return 401
	case c == Forbidden, c == NotAllowedToSubmit, c == Lockdown, c == ProblemAccessDenied, c >= 16000 && c < 16100:
		return 403
	case c == NotFound, c == ProblemNotFound, c == SubmissionNotFound, c == ContestNotFound, c == ProblemsetNotFound:
		return 404
	case c == ServiceUnavailable:
		return 503
	case c >= 10300 && c < 10400:
		return 400
	case c == InvalidParams, c == LanguageNotSupported:
		return 400
	default:
		return 500
	}
}
