// Command vrrpd runs one or more VRRPv2 Virtual Router Instances as a
// single daemon process.
package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/virtual-router/vrrpd/internal/config"
	"github.com/virtual-router/vrrpd/internal/supervisor"
	"github.com/virtual-router/vrrpd/pkg/vrrp"
)

var (
	actionFlag string

	fileFlag string

	inlineVRID     uint8
	inlineIface    string
	inlineIPs      []string
	inlinePriority uint8
	inlineAdvert   uint8
	inlinePreempt  bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "vrrpd",
		Short: "VRRPv2 virtual router daemon",
	}
	root.PersistentFlags().StringVar(&actionFlag, "action", "", "override every instance's action (run|teardown)")
	root.AddCommand(newRunCmd())
	return root
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "run the configured Virtual Router Instances",
		RunE:  runE,
	}
	cmd.Flags().StringVar(&fileFlag, "file", "", "path to a YAML or JSON config file")
	cmd.Flags().BoolVar(&inlineFlag, "inline", false, "configure a single instance from flags instead of a file")
	cmd.Flags().Uint8Var(&inlineVRID, "vrid", 0, "inline: virtual router ID")
	cmd.Flags().StringVar(&inlineIface, "iface", "", "inline: interface name")
	cmd.Flags().StringArrayVar(&inlineIPs, "ip", nil, "inline: virtual IP in CIDR form, repeatable")
	cmd.Flags().Uint8Var(&inlinePriority, "priority", 0, "inline: priority (defaults to 100)")
	cmd.Flags().Uint8Var(&inlineAdvert, "advert-interval", 0, "inline: advert interval seconds (defaults to 1)")
	cmd.Flags().BoolVar(&inlinePreempt, "preempt", true, "inline: preempt mode")
	return cmd
}

var inlineFlag bool

func runE(cmd *cobra.Command, _ []string) error {
	log := logrus.StandardLogger()

	instances, err := loadInstances()
	if err != nil {
		log.WithError(err).Error("configuration error")
		return err
	}

	if actionFlag != "" {
		override, err := config.ParseAction(actionFlag)
		if err != nil {
			log.WithError(err).Error("invalid --action")
			return err
		}
		config.ApplyActionOverride(instances, override)
	}

	sup := supervisor.New(log)
	if err := sup.Start(instances); err != nil {
		log.WithError(err).Error("no instance could be started")
		return err
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	<-sigc

	log.Info("shutting down")
	sup.Stop()
	return nil
}

func loadInstances() ([]config.VRIConfig, error) {
	if inlineFlag {
		return []config.VRIConfig{{
			VRID:           inlineVRID,
			InterfaceName:  inlineIface,
			IPAddresses:    inlineIPs,
			Priority:       inlinePriority,
			AdvertInterval: inlineAdvert,
			PreemptMode:    inlinePreempt,
		}}, nil
	}

	path := fileFlag
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return nil, err
		}
		if err := config.EnsureSeed(path); err != nil {
			return nil, err
		}
	}

	instances, errs := config.Load(path)
	for _, e := range errs {
		var cfgErr *vrrp.ConfigError
		if errors.As(e, &cfgErr) {
			return nil, e
		}
		logrus.WithError(e).Warn("dropping duplicate instance")
	}
	return instances, nil
}
