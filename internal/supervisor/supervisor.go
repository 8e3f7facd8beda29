// Package supervisor starts, runs, and tears down the set of Virtual
// Router Instances resolved from configuration, isolating a single
// instance's interface failure from its siblings.
package supervisor

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/virtual-router/vrrpd/internal/config"
	"github.com/virtual-router/vrrpd/internal/iface"
	"github.com/virtual-router/vrrpd/pkg/vrrp"
)

// Supervisor owns the running set of VRIs for one process.
type Supervisor struct {
	log *logrus.Entry
	vris []*vrrp.VRI
}

// New constructs a Supervisor that logs through log (or the package
// default if nil).
func New(log *logrus.Logger) *Supervisor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Supervisor{log: log.WithField("component", "supervisor")}
}

// Start resolves each instance and either starts its FSM (Action Run) or
// performs a one-shot address detach (Action Teardown, mirroring the
// original's virtual_address_action("delete", ...) early exit). A
// per-instance InterfaceError is logged and that instance skipped; other
// instances are unaffected. A malformed instance config is fatal: Start
// stops any instance it already started and returns the ConfigError.
// Otherwise Start reports an error only if no instance could start.
func (s *Supervisor) Start(instances []config.VRIConfig) error {
	started := 0
	for _, raw := range instances {
		cfg, action, err := config.ResolveInstance(raw)
		if err != nil {
			s.log.WithError(err).Error("rejecting malformed instance config")
			s.Stop()
			s.vris = nil
			return err
		}
		entryLog := s.log.WithFields(logrus.Fields{"vrid": cfg.VRID, "name": cfg.Name})

		if !iface.Exists(cfg.InterfaceName) {
			entryLog.WithField("interface", cfg.InterfaceName).Warn("interface not known to the kernel, skipping instance")
			continue
		}
		itf, primaryIP, err := iface.Resolve(cfg.InterfaceName)
		if err != nil {
			entryLog.WithError(err).Warn("interface unavailable, skipping instance")
			continue
		}

		if action == config.ActionTeardown {
			effector := vrrp.NetlinkEffector{}
			if err := effector.Detach(itf, cfg.IPAddresses); err != nil {
				entryLog.WithError(err).Warn("teardown detach failed")
			} else {
				entryLog.Info("teardown complete")
			}
			continue
		}

		conn, err := vrrp.NewIPv4Conn(itf)
		if err != nil {
			entryLog.WithError(err).Warn("opening vrrp socket failed, skipping instance")
			continue
		}
		announcer, err := vrrp.NewARPAnnouncer(itf)
		if err != nil {
			_ = conn.Close()
			entryLog.WithError(err).Warn("opening arp client failed, skipping instance")
			continue
		}

		vri, err := vrrp.NewVRI(cfg, itf, primaryIP, conn, vrrp.NetlinkEffector{}, announcer)
		if err != nil {
			_ = conn.Close()
			_ = announcer.Close()
			entryLog.WithError(err).Warn("constructing instance failed, skipping")
			continue
		}

		vri.Start()
		s.vris = append(s.vris, vri)
		started++
		entryLog.Info("instance started")
	}

	if len(instances) > 0 && started == 0 {
		return fmt.Errorf("no instance could be started")
	}
	return nil
}

// Stop runs the graceful shutdown sequence on every running instance.
func (s *Supervisor) Stop() {
	for _, vri := range s.vris {
		vri.Stop()
	}
}
