package logging

// Standardized field names for structured logging.
// These keep log output consistent across the codec, matcher and coordinator.
const (
	FieldRunID          = "run_id"
	FieldState          = "state"
	FieldMessageID      = "message_id"
	FieldMessageType    = "message_type"
	FieldEnvelopeID     = "envelope_id"
	FieldContentHash    = "content_hash"
	FieldEntryIndex     = "entry_index"
	FieldDedupKey       = "dedup_key"
	FieldContributionID = "contribution_id"
	FieldReference      = "reference"
	FieldReason         = "reason"
	FieldStatus         = "status"
	FieldOperation      = "operation"
	FieldLockName       = "lock_name"
	FieldAttempt        = "attempt"
	FieldAlert          = "alert"
	FieldComponent      = "component"
	FieldError          = "error"
	FieldDuration       = "duration_ms"
	FieldCount          = "count"
	FieldInputFile      = "input_file"
	FieldOutputFile     = "output_file"
)
