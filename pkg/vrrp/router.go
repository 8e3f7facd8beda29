package vrrp

import (
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// defaultLog is the package-level sink used when a VRI is not given its
// own logger. Generalizes the teacher's single package-level *log.Logger
// into a replaceable logrus instance.
var defaultLog = logrus.StandardLogger()

// SetLogger replaces the package-level default logger.
func SetLogger(l *logrus.Logger) {
	if l != nil {
		defaultLog = l
	}
}

// Config is the fully-resolved, validated configuration for one VRI
// (spec §3's VirtualRouterInstance fields).
type Config struct {
	Name           string
	VRID           uint8
	InterfaceName  string
	IPAddresses    []netip.Prefix
	Priority       uint8
	AdvertInterval uint8
	PreemptMode    bool
}

// Validate enforces the invariants spec §3 lists for a VRI.
func (c Config) Validate() error {
	if c.VRID < 1 {
		return &ConfigError{Reason: "vrid must be in 1..=255"}
	}
	if c.InterfaceName == "" {
		return &ConfigError{Reason: "interface_name is required"}
	}
	if len(c.IPAddresses) < 1 || len(c.IPAddresses) > MaxIPAddresses {
		return &ConfigError{Reason: fmt.Sprintf("ip_addresses must have 1..=%d entries, got %d", MaxIPAddresses, len(c.IPAddresses))}
	}
	if c.Priority == 0 {
		return &ConfigError{Reason: "priority 0 is reserved for graceful release and cannot be configured"}
	}
	if c.AdvertInterval == 0 {
		return &ConfigError{Reason: "advert_interval must be in 1..=255"}
	}
	return nil
}

// SkewSeconds is (256-priority)/256 seconds (spec §3).
func (c Config) SkewSeconds() float64 {
	return float64(256-int(c.Priority)) / 256.0
}

// MasterDownSeconds is 3*advert_interval + skew_time (spec §3).
func (c Config) MasterDownSeconds() float64 {
	return 3*float64(c.AdvertInterval) + c.SkewSeconds()
}

// VRI is a Virtual Router Instance: the top-level unit of spec §2/§3. Its
// mutex is the sole serialization point for FSM mutation and timer
// arming; the resulting network and effector I/O runs after it is
// released (see observe). The VRI is never copied once
// constructed, and is shared between its Receive and Timer workers as a
// plain pointer — Go's garbage collector removes the need for the
// explicit reference counting the design notes describe for non-GC'd
// languages (see DESIGN.md).
type VRI struct {
	Config Config

	mu        sync.Mutex
	fsm       FSM
	timer     Timer
	primaryIP netip.Addr // first non-virtual IPv4 on InterfaceName; tie-break input

	Interface *net.Interface

	Conn      MsgConn
	Effector  AddressEffector
	Announcer Announcer

	log *logrus.Entry

	advertMismatchWarn *intervalLimiter

	wg   sync.WaitGroup
	done chan struct{}
}

// NewVRI constructs a VRI bound to an already-resolved interface and
// primary IP. Network resources (conn, effector, announcer) are injected
// so the core stays testable without root privileges or real NICs.
func NewVRI(cfg Config, ift *net.Interface, primaryIP netip.Addr, conn MsgConn, effector AddressEffector, announcer Announcer) (*VRI, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	v := &VRI{
		Config:    cfg,
		Interface: ift,
		primaryIP: primaryIP,
		Conn:      conn,
		Effector:  effector,
		Announcer: announcer,
		done:      make(chan struct{}),
	}
	v.advertMismatchWarn = newIntervalLimiter(time.Duration(cfg.AdvertInterval) * time.Second)
	v.log = defaultLog.WithFields(logrus.Fields{
		"vrid":      cfg.VRID,
		"name":      cfg.Name,
		"interface": cfg.InterfaceName,
	})
	return v, nil
}

// State returns the current FSM state under lock.
func (v *VRI) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.fsm.State
}

// params snapshots the FSM inputs derived from config + current primary
// IP. Callers must hold v.mu.
func (v *VRI) params() FSMParams {
	return FSMParams{
		Priority:          v.Config.Priority,
		PreemptMode:       v.Config.PreemptMode,
		AdvertInterval:    v.Config.AdvertInterval,
		MasterDownSeconds: v.Config.MasterDownSeconds(),
		SkewSeconds:       v.Config.SkewSeconds(),
		PrimaryIP:         v.primaryIP,
	}
}

// readTimer is the accessor the Timer Loop polls; acquires the mutex
// briefly and returns a copy (spec §4.7: "timer reads must happen under
// the VRI mutex").
func (v *VRI) readTimer() Timer {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.timer
}

// Done exposes the shutdown signal for workers' suspension points.
func (v *VRI) Done() <-chan struct{} { return v.done }

// protectedAddrs returns the configured virtual IPv4 addresses.
func (v *VRI) protectedAddrs() []netip.Prefix {
	return v.Config.IPAddresses
}
