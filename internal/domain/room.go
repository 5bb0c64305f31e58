package domain

// Canonical role names used by the fleet clients. Role rooms are keyed
// by the literal string a client sends, so this set is not closed.
const (
	RoleAdmin   = "ADMIN"
	RoleDriver  = "DRIVER"
	RoleStudent = "STUDENT"
)

type roomKind uint8

const (
	roomRole roomKind = iota + 1
	roomBus
)

// RoomKey identifies a broadcast group. It is a tagged variant (role
// room or bus room) so the two namespaces cannot collide; the wire
// string form is produced only at the membership-map boundary.
type RoomKey struct {
	kind roomKind
	name string
}

// RoleRoom returns the room key for a role broadcast group.
func RoleRoom(role string) RoomKey {
	return RoomKey{kind: roomRole, name: role}
}

// BusRoom returns the room key for a per-vehicle subscriber group.
func BusRoom(busID string) RoomKey {
	return RoomKey{kind: roomBus, name: busID}
}

// IsBus reports whether the key names a bus room.
func (k RoomKey) IsBus() bool {
	return k.kind == roomBus
}

// Name returns the role name or bus id the key was built from.
func (k RoomKey) Name() string {
	return k.name
}

// String renders the wire form, "role:<ROLE>" or "bus:<id>".
func (k RoomKey) String() string {
	switch k.kind {
	case roomRole:
		return "role:" + k.name
	case roomBus:
		return "bus:" + k.name
	}
	return ""
}
