package apperrors

type Code string

const (
	CodeStorage             Code = "STORAGE_ERROR"
	CodeInvalidInput        Code = "INVALID_INPUT"
	CodeConcurrencyConflict Code = "CONCURRENCY_CONFLICT"
	CodeSession             Code = "SESSION_ERROR"
)
