package logger

// Standard field names for consistent structured logging across the store.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldUserID  = "user_id"
	FieldActorID = "actor_id"

	// Domain
	FieldSchema    = "schema"
	FieldAttribute = "attribute"
	FieldEntity    = "entity"
	FieldRevision  = "revision"

	// Components
	FieldComponent = "component"
	FieldOperation = "operation"

	// Counts and sizes
	FieldCount = "count"

	// Errors
	FieldError = "error"
)
