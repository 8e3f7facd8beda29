package vrrp

import (
	"net"
	"net/netip"
	"time"

	"github.com/sirupsen/logrus"
)

// observe is the Event Observer (spec §5): the only code path permitted to
// mutate a VRI's FSM. Both the Receive worker and the Timer worker funnel
// into it. It acquires the mutex once to decide, releases it, then performs
// any resulting I/O against owned copies of the fields it needs — per
// spec §5's "acquire, inspect, decide action, release, then perform
// blocking I/O" suspension rule.
func (v *VRI) observe(event Event) {
	v.mu.Lock()
	params := v.params()
	actions := v.fsm.Apply(params, event)
	now := time.Now()
	for _, a := range actions {
		switch a.Kind {
		case ActionArmAdvertisementTimer:
			v.timer = armAdvertisement(now, params)
		case ActionArmMasterDownTimer:
			v.timer = armMasterDown(now, params)
		case ActionArmMasterDownTimerSkew:
			v.timer = armMasterDownSkew(now, params)
		case ActionCancelTimer:
			v.timer = Timer{}
		}
	}
	itf := v.Interface
	addrs := append([]netip.Prefix(nil), v.protectedAddrs()...)
	vrid := v.Config.VRID
	priority := v.Config.Priority
	advertInt := v.Config.AdvertInterval
	conn := v.Conn
	effector := v.Effector
	announcer := v.Announcer
	log := v.log
	v.mu.Unlock()

	v.perform(actions, itf, addrs, vrid, priority, advertInt, conn, effector, announcer, log)
}

// perform runs the I/O implied by actions using the owned copies observe
// snapshotted under the mutex. Never called with the mutex held.
func (v *VRI) perform(
	actions []Action,
	itf *net.Interface,
	addrs []netip.Prefix,
	vrid uint8,
	priority uint8,
	advertInt uint8,
	conn MsgConn,
	effector AddressEffector,
	announcer Announcer,
	log *logrus.Entry,
) {
	for _, a := range actions {
		switch a.Kind {
		case ActionSendAdvertisement:
			p := priority
			if a.AdvertPriority != nil {
				p = *a.AdvertPriority
			}
			adv := &Advertisement{
				VirtualRouterID: vrid,
				Priority:        p,
				AdvertInt:       advertInt,
				IPAddresses:     prefixAddrs(addrs),
			}
			if conn == nil {
				continue
			}
			if err := conn.WriteAdvertisement(adv); err != nil {
				log.WithError(err).Warn("send advertisement failed")
			}
		case ActionSendGratuitousARP:
			if announcer == nil {
				continue
			}
			if err := announcer.AnnounceAll(vrid, addrs); err != nil {
				log.WithError(err).Warn("gratuitous arp failed")
			}
		case ActionAttachAddresses:
			if effector == nil {
				continue
			}
			if err := effector.Attach(itf, addrs); err != nil {
				log.WithError(err).Warn("attach addresses failed")
			}
		case ActionDetachAddresses:
			if effector == nil {
				continue
			}
			if err := effector.Detach(itf, addrs); err != nil {
				log.WithError(err).Warn("detach addresses failed")
			}
		}
	}
}

// prefixAddrs strips the prefix length, keeping only the host address, for
// placement in an outgoing Advertisement's IP-address list.
func prefixAddrs(prefixes []netip.Prefix) []netip.Addr {
	out := make([]netip.Addr, 0, len(prefixes))
	for _, p := range prefixes {
		out = append(out, p.Addr())
	}
	return out
}
