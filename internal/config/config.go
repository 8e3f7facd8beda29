// Package config ingests vrrpd's configuration from a structured file
// (YAML or JSON) or from CLI-inline flags, and resolves it into the
// pkg/vrrp.Config values the supervisor hands to each Virtual Router
// Instance.
package config

import (
	"fmt"
	"math/rand"
	"net/netip"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/virtual-router/vrrpd/pkg/vrrp"
)

// Action selects whether a configured instance runs its FSM or merely
// tears down any addresses it may have previously attached.
type Action string

const (
	ActionRun      Action = "run"
	ActionTeardown Action = "teardown"
)

// ParseAction validates a user-supplied action string, defaulting an
// empty string to ActionRun.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case "", ActionRun:
		return ActionRun, nil
	case ActionTeardown:
		return ActionTeardown, nil
	default:
		return "", &vrrp.ConfigError{Reason: fmt.Sprintf("unknown action %q", s)}
	}
}

// VRIConfig is the on-disk / CLI shape of one Virtual Router Instance.
// YAML and JSON share this struct, and field names, per spec (the
// original's dual serde_yaml/serde_json support).
type VRIConfig struct {
	Name           string   `yaml:"name" json:"name"`
	VRID           uint8    `yaml:"vrid" json:"vrid"`
	InterfaceName  string   `yaml:"interface_name" json:"interface_name"`
	IPAddresses    []string `yaml:"ip_addresses" json:"ip_addresses"`
	Priority       uint8    `yaml:"priority" json:"priority"`
	AdvertInterval uint8    `yaml:"advert_interval" json:"advert_interval"`
	PreemptMode    bool     `yaml:"preempt_mode" json:"preempt_mode"`
	Action         Action   `yaml:"action" json:"action"`
}

type fileDocument struct {
	Instances []VRIConfig `yaml:"instances" json:"instances"`
}

// Load reads path (YAML, or JSON if it parses as such) and returns the
// accepted instance set plus any DuplicateError for a later entry
// reusing a name or vrid already claimed within the same file — the
// first entry always wins (spec §6).
func Load(path string) ([]VRIConfig, []error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, []error{&vrrp.ConfigError{Reason: err.Error()}}
	}

	var doc fileDocument
	if yerr := yaml.Unmarshal(raw, &doc); yerr != nil {
		return nil, []error{&vrrp.ConfigError{Reason: fmt.Sprintf("parse %s: %v", path, yerr)}}
	}

	return dedup(doc.Instances)
}

func dedup(instances []VRIConfig) ([]VRIConfig, []error) {
	var (
		accepted []VRIConfig
		errs     []error
		byName   = map[string]bool{}
		byVRID   = map[uint8]bool{}
	)
	for _, inst := range instances {
		if inst.Name != "" && byName[inst.Name] {
			errs = append(errs, &vrrp.DuplicateError{Field: "name", Value: inst.Name})
			continue
		}
		if byVRID[inst.VRID] {
			errs = append(errs, &vrrp.DuplicateError{Field: "vrid", Value: fmt.Sprintf("%d", inst.VRID)})
			continue
		}
		if inst.Name != "" {
			byName[inst.Name] = true
		}
		byVRID[inst.VRID] = true
		accepted = append(accepted, inst)
	}
	return accepted, errs
}

// ApplyActionOverride sets every instance's Action to override when
// override is non-empty, implementing the CLI-wins precedence rule
// (REDESIGN FLAG 3): an explicitly-passed --action always beats each
// instance's own file-configured action.
func ApplyActionOverride(instances []VRIConfig, override Action) {
	if override == "" {
		return
	}
	for i := range instances {
		instances[i].Action = override
	}
}

// namer hands out auto-generated names; process-lifetime, so names stay
// unique across however many unnamed instances this run resolves.
var namer = rand.New(rand.NewSource(time.Now().UnixNano()))

const nameCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// AutoName produces a stable-format "VR-<random 10 chars>" name, ported
// from the original's random_string-backed default naming (spec §6).
func AutoName() string {
	b := make([]byte, 10)
	for i := range b {
		b[i] = nameCharset[namer.Intn(len(nameCharset))]
	}
	return "VR-" + string(b)
}

// ResolveInstance fills in defaults (auto-name, default priority/advert
// interval) and parses the string IP addresses into netip.Prefix values,
// producing the pkg/vrrp.Config the supervisor starts a VRI from.
func ResolveInstance(c VRIConfig) (vrrp.Config, Action, error) {
	name := c.Name
	if name == "" {
		name = AutoName()
	}
	priority := c.Priority
	if priority == 0 {
		priority = vrrp.DefaultPriority
	}
	advertInterval := c.AdvertInterval
	if advertInterval == 0 {
		advertInterval = vrrp.DefaultAdvertInterval
	}

	prefixes := make([]netip.Prefix, 0, len(c.IPAddresses))
	for _, s := range c.IPAddresses {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return vrrp.Config{}, "", &vrrp.ConfigError{Reason: fmt.Sprintf("instance %s: invalid ip_addresses entry %q: %v", name, s, err)}
		}
		prefixes = append(prefixes, p)
	}

	action, err := ParseAction(string(c.Action))
	if err != nil {
		return vrrp.Config{}, "", err
	}

	cfg := vrrp.Config{
		Name:           name,
		VRID:           c.VRID,
		InterfaceName:  c.InterfaceName,
		IPAddresses:    prefixes,
		Priority:       priority,
		AdvertInterval: advertInterval,
		PreemptMode:    c.PreemptMode,
	}
	return cfg, action, cfg.Validate()
}

// DefaultDir returns $SNAP_COMMON when set (the original's snap-packaging
// convention) or /etc/vrrpd otherwise, creating it if absent.
func DefaultDir() (string, error) {
	dir := os.Getenv("SNAP_COMMON")
	if dir == "" {
		dir = "/etc/vrrpd"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &vrrp.ConfigError{Reason: fmt.Sprintf("create config dir %s: %v", dir, err)}
	}
	return dir, nil
}

// DefaultPath is <DefaultDir()>/vrrpd-config.yaml.
func DefaultPath() (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "vrrpd-config.yaml"), nil
}

const seedTemplate = `# vrrpd configuration, seeded on first run. Uncomment and edit an
# instance below, or add your own.
#
# instances:
#   - name: VR_1
#     vrid: 51
#     interface_name: eth0
#     ip_addresses: ["192.168.100.100/24"]
#     priority: 101
#     advert_interval: 1
#     preempt_mode: true
#     action: run
instances: []
`

// EnsureSeed writes a commented example config to path if nothing exists
// there yet (the original's DEFAULT_JSON_CONFIG seed-file behavior).
func EnsureSeed(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return &vrrp.ConfigError{Reason: err.Error()}
	}
	if err := os.WriteFile(path, []byte(seedTemplate), 0o644); err != nil {
		return &vrrp.ConfigError{Reason: fmt.Sprintf("seed config at %s: %v", path, err)}
	}
	return nil
}
