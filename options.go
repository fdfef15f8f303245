package xchg

import (
	"time"

	"github.com/xchgio/xchg-client/transport"
)

// Default option values (§6).
const (
	DefaultHeartbeatInterval   = 30 * time.Second
	DefaultHeartbeatTimeout    = 60 * time.Second
	DefaultReconnectBackoff    = time.Second
	DefaultMaxReconnectBackoff = 30 * time.Second
)

// EngineOptions configures a Engine. Fields left nil/zero resolve to the
// defaults in §6; use Option funcs to build one, mirroring the teacher's
// Set<Field> builder methods but collapsed onto a single struct since this
// engine has one options consumer rather than a Manager/Socket split.
type EngineOptions struct {
	TransportFactory      transport.Factory
	HeartbeatInterval     *time.Duration // 0 disables heartbeat
	HeartbeatTimeout      *time.Duration
	AutoReconnect         *bool
	ReconnectBackoff      *time.Duration
	MaxReconnectBackoff   *time.Duration
	RegisterOnConnect     *bool
	Debug                 bool
}

// Option mutates an EngineOptions under construction.
type Option func(*EngineOptions)

// WithTransportFactory overrides the built-in WebSocket transport.
func WithTransportFactory(f transport.Factory) Option {
	return func(o *EngineOptions) { o.TransportFactory = f }
}

// WithHeartbeat sets the heartbeat send interval and ack timeout. An
// interval of 0 disables heartbeating entirely.
func WithHeartbeat(interval, timeout time.Duration) Option {
	return func(o *EngineOptions) {
		o.HeartbeatInterval = &interval
		o.HeartbeatTimeout = &timeout
	}
}

// WithAutoReconnect toggles the reconnect loop.
func WithAutoReconnect(enabled bool) Option {
	return func(o *EngineOptions) { o.AutoReconnect = &enabled }
}

// WithReconnectBackoff sets the initial and maximum reconnect delay.
func WithReconnectBackoff(base, max time.Duration) Option {
	return func(o *EngineOptions) {
		o.ReconnectBackoff = &base
		o.MaxReconnectBackoff = &max
	}
}

// WithRegisterOnConnect toggles re-sending the pinned registration after
// every successful (re)connect.
func WithRegisterOnConnect(enabled bool) Option {
	return func(o *EngineOptions) { o.RegisterOnConnect = &enabled }
}

// WithDebug gates verbose diagnostic logging through DEBUG=xchg:*.
func WithDebug(enabled bool) Option {
	return func(o *EngineOptions) { o.Debug = enabled }
}

func resolveOptions(opts []Option) *EngineOptions {
	o := &EngineOptions{}
	for _, opt := range opts {
		opt(o)
	}

	if o.TransportFactory == nil {
		o.TransportFactory = transport.NewWebSocketFactory()
	}
	if o.HeartbeatInterval == nil {
		d := DefaultHeartbeatInterval
		o.HeartbeatInterval = &d
	}
	if o.HeartbeatTimeout == nil {
		d := DefaultHeartbeatTimeout
		o.HeartbeatTimeout = &d
	}
	if o.AutoReconnect == nil {
		b := true
		o.AutoReconnect = &b
	}
	if o.ReconnectBackoff == nil {
		d := DefaultReconnectBackoff
		o.ReconnectBackoff = &d
	}
	if o.MaxReconnectBackoff == nil {
		d := DefaultMaxReconnectBackoff
		o.MaxReconnectBackoff = &d
	}
	if o.RegisterOnConnect == nil {
		b := true
		o.RegisterOnConnect = &b
	}
	return o
}

// RegistrationRequest is the pinned registration retained across
// reconnects (§3 RegistrationRequest, §4.5 Registration).
type RegistrationRequest struct {
	Address         string
	Metadata        map[string]any
	ConcurrencyMode string // "single" | "broadcast" | "parallel"; opaque to the engine
	MaxListeners    *int
	MaxSessions     *int
	PoolSize        *int
}

// RegisterOption mutates a RegistrationRequest under construction.
type RegisterOption func(*RegistrationRequest)

func WithRegistrationMetadata(md map[string]any) RegisterOption {
	return func(r *RegistrationRequest) { r.Metadata = md }
}

func WithConcurrencyMode(mode string) RegisterOption {
	return func(r *RegistrationRequest) { r.ConcurrencyMode = mode }
}

func WithMaxListeners(n int) RegisterOption {
	return func(r *RegistrationRequest) { r.MaxListeners = &n }
}

func WithMaxSessions(n int) RegisterOption {
	return func(r *RegistrationRequest) { r.MaxSessions = &n }
}

func WithPoolSize(n int) RegisterOption {
	return func(r *RegistrationRequest) { r.PoolSize = &n }
}

// DialOptions configures an outbound dial.
type DialOptions struct {
	Metadata  map[string]any
	TimeoutMs int // 0 means no operation-level timeout
}

// DialOption mutates DialOptions under construction.
type DialOption func(*DialOptions)

func WithDialMetadata(md map[string]any) DialOption {
	return func(o *DialOptions) { o.Metadata = md }
}

func WithDialTimeout(ms int) DialOption {
	return func(o *DialOptions) { o.TimeoutMs = ms }
}
