package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor
	FieldUserID = "user_id"
	FieldConnID = "conn_id"

	// Fleet
	FieldBusID = "bus_id"
	FieldRole  = "role"
	FieldRoom  = "room"
	FieldEvent = "event"

	// Service
	FieldService = "service"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)

const headerRequestID = "X-Request-ID"
