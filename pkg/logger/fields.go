package logger

const (
	FieldChatID   = "chat_id"
	FieldSenderID = "sender_id"
	FieldUpdateID = "update_id"
	FieldCommand  = "command"
	FieldPreview  = "preview"
	FieldError    = "error"

	FieldRunID    = "run_id"
	FieldTrigger  = "trigger"
	FieldDuration = "duration_ms"
	FieldURL      = "url"
	FieldAddr     = "addr"
	FieldState    = "state"
)
