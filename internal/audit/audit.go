package audit

import (
	"context"

	"github.com/fleetbeam/tracker-hub/pkg/log"
)

// Audit actions for the tracker hub.
const (
	ActionJoinRole   = "fleet.join_role"
	ActionJoinBus    = "fleet.join_bus"
	ActionSOS        = "fleet.sos_trigger"
	ActionTrip       = "fleet.trip_update"
	ActionAttendance = "fleet.attendance_scan"
	ActionDisconnect = "fleet.disconnect"
)

// Field constants for audit entries.
const (
	FieldAction = "action"
	FieldDetail = "detail"
)

// Log emits a structured audit entry via the context logger.
func Log(ctx context.Context, action, connID, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldConnID, connID).
		Msg(msg)
}

// LogWithDetail emits an audit entry with an extra detail field.
func LogWithDetail(ctx context.Context, action, connID, detail, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldConnID, connID).
		Str(FieldDetail, detail).
		Msg(msg)
}
