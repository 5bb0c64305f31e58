package domain

// WebSocket event types from client.
const (
	MsgTypeJoinRole       = "join:role"
	MsgTypeJoinBus        = "join:bus"
	MsgTypeSubscribeBus   = "subscribe:bus"
	MsgTypeLocationUpdate = "location:update"
	MsgTypeSOSTrigger     = "sos:trigger"
	MsgTypeTripUpdate     = "trip:update"
	MsgTypeAttendanceScan = "attendance:scan"
)

// WebSocket event types to client.
const (
	MsgTypeLocationUpdated    = "location:updated"
	MsgTypeSOSAlert           = "sos:alert"
	MsgTypeSOSAccepted        = "sos:accepted"
	MsgTypeTripUpdated        = "trip:updated"
	MsgTypeAttendanceRecorded = "attendance:recorded"
	MsgTypeRoomJoined         = "room:joined"
	MsgTypeError              = "error"
)

// Error codes
const (
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// BaseMessage is the base structure for all WebSocket messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server messages

type JoinRoleMessage struct {
	Type string `json:"type"`
	Role string `json:"role"`
}

type JoinBusMessage struct {
	Type  string `json:"type"`
	BusID string `json:"bus_id"`
}

type LocationUpdateMessage struct {
	Type      string  `json:"type"`
	BusID     string  `json:"bus_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Speed     float64 `json:"speed"`
	Heading   float64 `json:"heading"`
}

type SOSTriggerMessage struct {
	Type      string   `json:"type"`
	UserID    string   `json:"user_id"`
	BusID     string   `json:"bus_id"`
	Message   string   `json:"message"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

type TripUpdateMessage struct {
	Type     string `json:"type"`
	BusID    string `json:"bus_id"`
	DriverID string `json:"driver_id"`
	Action   string `json:"action"`
}

type AttendanceScanMessage struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	BusID  string `json:"bus_id"`
}

// Trip actions carried by trip:update.
const (
	TripActionStart = "start"
	TripActionStop  = "stop"
)

// Server -> Client messages

// LocationUpdate is the relayed position payload. Timestamp is assigned
// by the hub at relay time, never trusted from the client.
type LocationUpdate struct {
	BusID     string  `json:"bus_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Speed     float64 `json:"speed"`
	Heading   float64 `json:"heading"`
	Timestamp int64   `json:"timestamp"`
}

type LocationUpdatedMessage struct {
	Type string `json:"type"`
	LocationUpdate
}

// SOSAlert is a relayed alert. ID is assigned exactly once per inbound
// trigger; relays to multiple rooms carry the same id.
type SOSAlert struct {
	ID        string   `json:"id"`
	UserID    string   `json:"user_id"`
	BusID     string   `json:"bus_id"`
	Message   string   `json:"message"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Timestamp int64    `json:"timestamp"`
	Resolved  bool     `json:"resolved"`
}

type SOSAlertMessage struct {
	Type string `json:"type"`
	SOSAlert
}

type SOSAcceptedMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
}

type TripUpdate struct {
	BusID     string `json:"bus_id"`
	DriverID  string `json:"driver_id"`
	Action    string `json:"action"`
	Timestamp int64  `json:"timestamp"`
}

type TripUpdatedMessage struct {
	Type string `json:"type"`
	TripUpdate
}

// AttendanceRecord carries a scan stamped at relay time.
type AttendanceRecord struct {
	UserID    string `json:"user_id"`
	BusID     string `json:"bus_id"`
	ScannedAt int64  `json:"scanned_at"`
}

type AttendanceRecordedMessage struct {
	Type string `json:"type"`
	AttendanceRecord
}

type RoomJoinedMessage struct {
	Type string `json:"type"`
	Room string `json:"room"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:    MsgTypeError,
		Code:    code,
		Message: message,
	}
}
