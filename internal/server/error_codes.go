package server

const (
	// Validation (1xxx)
	ErrCodeInvalidArgument  = 1000
	ErrCodeRequestTooLarge  = 1002
	ErrCodeInvalidQuery     = 1003
	ErrCodeInvalidID        = 1004
	ErrCodeMissingRequired  = 1009
	ErrCodeInvalidNamespace = 1015
	ErrCodeEmptyPayload     = 1016
	ErrCodeInvalidFormat    = 1017
	ErrCodeUploadAborted    = 1018

	// Domain state (2xxx)
	ErrCodeBlobNotFound = 2001

	// Limits (3xxx)
	ErrCodeResourceExhausted = 3003

	// Internal/system (4xxx)
	ErrCodeInternal         = 4001
	ErrCodeStoreFailure     = 4002
	ErrCodeStoreUnreachable = 4006
	ErrCodeIntegrityFailure = 4007
)

func defaultErrorCodeByStatus(status int) int {
	switch status {
	case 400:
		return ErrCodeInvalidArgument
	case 404:
		return ErrCodeBlobNotFound
	case 413:
		return ErrCodeRequestTooLarge
	case 429:
		return ErrCodeResourceExhausted
	case 500:
		return ErrCodeInternal
	default:
		return 0
	}
}
