package logger

import "go.uber.org/zap"

// Standard field names for consistent logging.
const (
	FieldService   = "service"
	FieldOperation = "operation"
	FieldError     = "error"
	FieldChatID    = "chat_id"
	FieldPayID     = "pay_id"
	FieldRequestID = "request_id"
)

// Service tags entries with the emitting component.
func Service(name string) zap.Field {
	return zap.String(FieldService, name)
}

// Operation tags entries with the operation being performed.
func Operation(name string) zap.Field {
	return zap.String(FieldOperation, name)
}

// ChatID tags entries with a Telegram chat id.
func ChatID(id int64) zap.Field {
	return zap.Int64(FieldChatID, id)
}

// PayID tags entries with a payment ledger key.
func PayID(id string) zap.Field {
	return zap.String(FieldPayID, id)
}

// RequestID tags entries with an HTTP request id.
func RequestID(id string) zap.Field {
	return zap.String(FieldRequestID, id)
}
