package registry

import "context"

// Registry mirrors live bus rooms into an external store so ops tooling
// can see the active fleet without talking to the hub directly. It is
// best-effort bookkeeping, never part of the broadcast path.
type Registry interface {
	RegisterBus(ctx context.Context, busID string) error
	DeregisterBus(ctx context.Context, busID string) error
	ActiveBuses(ctx context.Context) ([]string, error)
	StartHeartbeat(ctx context.Context) error
	StopHeartbeat()
	Close() error
}

// Noop satisfies Registry when Redis is disabled and in tests.
type Noop struct{}

func (Noop) RegisterBus(context.Context, string) error   { return nil }
func (Noop) DeregisterBus(context.Context, string) error { return nil }
func (Noop) ActiveBuses(context.Context) ([]string, error) {
	return nil, nil
}
func (Noop) StartHeartbeat(context.Context) error { return nil }
func (Noop) StopHeartbeat()                       {}
func (Noop) Close() error                         { return nil }
