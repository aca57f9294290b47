package contract

import "errors"

var (
	ErrModelInvoke     = errors.New("model invoke failed")
	ErrSchemaViolation = errors.New("model response violates schema")
	ErrPromptMissing   = errors.New("required prompt is missing")
	ErrValidation      = errors.New("validation failed")

	ErrInvalidRequest     = errors.New("invalid request")
	ErrPlanningFailed     = errors.New("planning failed")
	ErrToolNotFound       = errors.New("tool not found")
	ErrUnreachable        = errors.New("agent unreachable")
	ErrTimeout            = errors.New("agent call timed out")
	ErrRemoteError        = errors.New("agent reported an error")
	ErrInvalidResponse    = errors.New("agent returned an invalid response")
	ErrAggregationFailure = errors.New("aggregation failed")
)
