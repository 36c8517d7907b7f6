package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden       ErrCode = "FORBIDDEN"
	ErrAdminAccessOnly ErrCode = "ADMIN_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Exams ─────────────────────────────────────────────────────────
	ErrExamNotFound ErrCode = "EXAM_NOT_FOUND"
	ErrExamInactive ErrCode = "EXAM_INACTIVE"

	// ─── Attempts ──────────────────────────────────────────────────────
	ErrAttemptNotFound    ErrCode = "ATTEMPT_NOT_FOUND"
	ErrAttemptNotStarted  ErrCode = "ATTEMPT_NOT_STARTED"
	ErrAttemptStarted     ErrCode = "ATTEMPT_ALREADY_STARTED"
	ErrAttemptFinished    ErrCode = "ATTEMPT_ALREADY_SUBMITTED"
	ErrSubmitInFlight     ErrCode = "SUBMISSION_IN_FLIGHT"
	ErrUnknownQuestion    ErrCode = "UNKNOWN_QUESTION"
	ErrSubmissionRejected ErrCode = "SUBMISSION_REJECTED"

	// ─── Upstream ──────────────────────────────────────────────────────
	ErrUpstreamUnavailable ErrCode = "UPSTREAM_UNAVAILABLE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	case ErrTokenRequired:
		return "Authentication is required. Please login to continue."
	case ErrTokenInvalid:
		return "The authentication token is invalid."
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrAdminAccessOnly:
		return "This resource is restricted to administrators."
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."
	case ErrExamNotFound:
		return "Exam not found."
	case ErrExamInactive:
		return "This exam is currently inactive."
	case ErrAttemptNotFound:
		return "No such attempt. It may have expired."
	case ErrAttemptNotStarted:
		return "The attempt has not been started yet."
	case ErrAttemptStarted:
		return "The attempt has already been started."
	case ErrAttemptFinished:
		return "The attempt has already been submitted."
	case ErrSubmitInFlight:
		return "A submission is already in progress."
	case ErrUnknownQuestion:
		return "The question does not belong to this exam."
	case ErrSubmissionRejected:
		return "The submission was rejected. Please try again."
	case ErrUpstreamUnavailable:
		return "The examination service is unreachable. Please try again."
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
