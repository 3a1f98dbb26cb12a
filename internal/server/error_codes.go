package server

const (
	// Validation (1xxx)
	ErrCodeInvalidArgument = 1000
	ErrCodeInvalidForm     = 1001
	ErrCodeRequestTooLarge = 1002

	// Upstream (2xxx)
	ErrCodeAvatarFetchFailed = 2001

	// Internal/system (4xxx)
	ErrCodeInternal     = 4001
	ErrCodeStoreFailure = 4002
)

func defaultErrorCodeByStatus(status int) int {
	switch status {
	case 400, 413:
		return ErrCodeInvalidArgument
	case 502:
		return ErrCodeAvatarFetchFailed
	case 500:
		return ErrCodeInternal
	default:
		return 0
	}
}
