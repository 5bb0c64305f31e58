package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/fleetbeam/tracker-hub/internal/audit"
	"github.com/fleetbeam/tracker-hub/internal/domain"
	"github.com/fleetbeam/tracker-hub/internal/hub"
	"github.com/fleetbeam/tracker-hub/internal/registry"
	"github.com/fleetbeam/tracker-hub/pkg/log"
)

type trackerService struct {
	hub      *hub.Hub
	registry registry.Registry
}

func NewTrackerService(h *hub.Hub, reg registry.Registry) EventService {
	s := &trackerService{
		hub:      h,
		registry: reg,
	}
	// Evicted members go through the same disconnect path as a closed
	// socket, so bus registry bookkeeping is never skipped.
	h.OnEvict(func(c *hub.Client) {
		s.HandleDisconnect(context.Background(), c)
	})
	return s
}

func (s *trackerService) HandleJoinRole(ctx context.Context, c *hub.Client, role string) error {
	if role == "" {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "role is required"))
	}

	// Role strings are honored literally; the protocol does not close
	// the role set at this layer.
	key := domain.RoleRoom(role)
	s.hub.Join(c, key)

	audit.LogWithDetail(ctx, audit.ActionJoinRole, c.ID, role, "joined role room")

	return c.SendMessage(&domain.RoomJoinedMessage{
		Type: domain.MsgTypeRoomJoined,
		Room: key.String(),
	})
}

func (s *trackerService) HandleJoinBus(ctx context.Context, c *hub.Client, busID string) error {
	if busID == "" {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "bus_id is required"))
	}

	key := domain.BusRoom(busID)
	firstMember := s.hub.RoomCount(key) == 0
	s.hub.Join(c, key)

	if firstMember {
		if err := s.registry.RegisterBus(ctx, busID); err != nil {
			l := log.Ctx(ctx)
			l.Error().Str(log.FieldBusID, busID).Err(err).Msg("failed to register bus in registry")
		}
	}

	audit.LogWithDetail(ctx, audit.ActionJoinBus, c.ID, busID, "joined bus room")

	return c.SendMessage(&domain.RoomJoinedMessage{
		Type: domain.MsgTypeRoomJoined,
		Room: key.String(),
	})
}

func (s *trackerService) HandleLocationUpdate(ctx context.Context, c *hub.Client, msg domain.LocationUpdateMessage) error {
	if msg.BusID == "" {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "bus_id is required"))
	}

	out := &domain.LocationUpdatedMessage{
		Type: domain.MsgTypeLocationUpdated,
		LocationUpdate: domain.LocationUpdate{
			BusID:     msg.BusID,
			Latitude:  msg.Latitude,
			Longitude: msg.Longitude,
			Speed:     msg.Speed,
			Heading:   msg.Heading,
			Timestamp: time.Now().UnixMilli(),
		},
	}

	data, err := json.Marshal(out)
	if err != nil {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeInternalError, "failed to relay location"))
	}

	// Two independent broadcasts: the sender is excluded only from its
	// own bus room, admins always get the update.
	s.hub.Broadcast(domain.BusRoom(msg.BusID), data, c.ID)
	s.hub.Broadcast(domain.RoleRoom(domain.RoleAdmin), data, "")
	return nil
}

func (s *trackerService) HandleSOSTrigger(ctx context.Context, c *hub.Client, msg domain.SOSTriggerMessage) error {
	if msg.BusID == "" {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "bus_id is required"))
	}
	if msg.UserID == "" {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "user_id is required"))
	}

	// Alert identity is assigned once per trigger; both target rooms
	// see the same id.
	alert := domain.SOSAlert{
		ID:        uuid.New().String(),
		UserID:    msg.UserID,
		BusID:     msg.BusID,
		Message:   msg.Message,
		Latitude:  msg.Latitude,
		Longitude: msg.Longitude,
		Timestamp: time.Now().UnixMilli(),
		Resolved:  false,
	}

	data, err := json.Marshal(&domain.SOSAlertMessage{
		Type:     domain.MsgTypeSOSAlert,
		SOSAlert: alert,
	})
	if err != nil {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeInternalError, "failed to relay alert"))
	}

	s.hub.BroadcastToMany([]domain.RoomKey{
		domain.RoleRoom(domain.RoleAdmin),
		domain.BusRoom(msg.BusID),
	}, data, "")

	audit.LogWithDetail(ctx, audit.ActionSOS, c.ID, msg.BusID, "sos alert relayed")

	return c.SendMessage(&domain.SOSAcceptedMessage{
		Type:      domain.MsgTypeSOSAccepted,
		ID:        alert.ID,
		Timestamp: alert.Timestamp,
	})
}

func (s *trackerService) HandleTripUpdate(ctx context.Context, c *hub.Client, msg domain.TripUpdateMessage) error {
	if msg.BusID == "" {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "bus_id is required"))
	}
	if msg.Action != domain.TripActionStart && msg.Action != domain.TripActionStop {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "action must be start or stop"))
	}

	data, err := json.Marshal(&domain.TripUpdatedMessage{
		Type: domain.MsgTypeTripUpdated,
		TripUpdate: domain.TripUpdate{
			BusID:     msg.BusID,
			DriverID:  msg.DriverID,
			Action:    msg.Action,
			Timestamp: time.Now().UnixMilli(),
		},
	})
	if err != nil {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeInternalError, "failed to relay trip update"))
	}

	s.hub.BroadcastToMany([]domain.RoomKey{
		domain.RoleRoom(domain.RoleAdmin),
		domain.BusRoom(msg.BusID),
	}, data, "")

	audit.LogWithDetail(ctx, audit.ActionTrip, c.ID, msg.BusID+":"+msg.Action, "trip update relayed")
	return nil
}

func (s *trackerService) HandleAttendanceScan(ctx context.Context, c *hub.Client, msg domain.AttendanceScanMessage) error {
	if msg.BusID == "" {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "bus_id is required"))
	}
	if msg.UserID == "" {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "user_id is required"))
	}

	data, err := json.Marshal(&domain.AttendanceRecordedMessage{
		Type: domain.MsgTypeAttendanceRecorded,
		AttendanceRecord: domain.AttendanceRecord{
			UserID:    msg.UserID,
			BusID:     msg.BusID,
			ScannedAt: time.Now().UnixMilli(),
		},
	})
	if err != nil {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeInternalError, "failed to relay attendance"))
	}

	// Attendance is an admin-facing record only.
	s.hub.Broadcast(domain.RoleRoom(domain.RoleAdmin), data, "")

	audit.LogWithDetail(ctx, audit.ActionAttendance, c.ID, msg.BusID, "attendance scan relayed")
	return nil
}

func (s *trackerService) HandleDisconnect(ctx context.Context, c *hub.Client) {
	rooms := s.hub.Rooms(c)
	s.hub.Unregister(c)

	for _, key := range rooms {
		if !key.IsBus() {
			continue
		}
		if s.hub.RoomCount(key) == 0 {
			if err := s.registry.DeregisterBus(ctx, key.Name()); err != nil {
				l := log.Ctx(ctx)
				l.Error().Str(log.FieldBusID, key.Name()).Err(err).Msg("failed to deregister bus")
			}
		}
	}

	audit.Log(ctx, audit.ActionDisconnect, c.ID, "connection closed")
}

func (s *trackerService) Start(ctx context.Context) error {
	return s.registry.StartHeartbeat(ctx)
}

func (s *trackerService) Stop() {
	s.registry.StopHeartbeat()
}
