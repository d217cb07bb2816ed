package apperr

type Code string

const (
	CodeValidation       Code = "VALIDATION_ERROR"
	CodeForbidden        Code = "FORBIDDEN"
	CodeNotFound         Code = "NOT_FOUND"
	CodeInvalidOperation Code = "INVALID_OPERATION"
	CodeConflict         Code = "CONFLICT"
	CodeInternal         Code = "INTERNAL"
)
