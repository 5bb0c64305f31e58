package service

import (
	"context"

	"github.com/fleetbeam/tracker-hub/internal/domain"
	"github.com/fleetbeam/tracker-hub/internal/hub"
)

// EventService implements the hub-side semantics of every inbound
// client event. Handlers answer the originating connection with a typed
// error on bad input and never propagate failures to the room.
type EventService interface {
	HandleJoinRole(ctx context.Context, c *hub.Client, role string) error
	HandleJoinBus(ctx context.Context, c *hub.Client, busID string) error
	HandleLocationUpdate(ctx context.Context, c *hub.Client, msg domain.LocationUpdateMessage) error
	HandleSOSTrigger(ctx context.Context, c *hub.Client, msg domain.SOSTriggerMessage) error
	HandleTripUpdate(ctx context.Context, c *hub.Client, msg domain.TripUpdateMessage) error
	HandleAttendanceScan(ctx context.Context, c *hub.Client, msg domain.AttendanceScanMessage) error
	HandleDisconnect(ctx context.Context, c *hub.Client)

	Start(ctx context.Context) error
	Stop()
}
