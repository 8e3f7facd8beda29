package vrrp

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultParams() FSMParams {
	return FSMParams{
		Priority:          100,
		PreemptMode:       true,
		AdvertInterval:    1,
		MasterDownSeconds: 3 + 156.0/256.0,
		SkewSeconds:       156.0 / 256.0,
		PrimaryIP:         netip.MustParseAddr("192.168.0.10"),
	}
}

func TestColdStartNonOwnerEntersBackup(t *testing.T) {
	f := FSM{State: StateInitialize}
	actions := f.Apply(defaultParams(), Event{Kind: EventStartup})
	assert.Equal(t, StateBackup, f.State)
	require.Len(t, actions, 2)
	assert.Equal(t, ActionDetachAddresses, actions[0].Kind)
	assert.Equal(t, ActionArmMasterDownTimer, actions[1].Kind)
}

func TestColdStartOwnerEntersMaster(t *testing.T) {
	f := FSM{State: StateInitialize}
	params := defaultParams()
	params.Priority = OwnerPriority
	actions := f.Apply(params, Event{Kind: EventStartup})
	assert.Equal(t, StateMaster, f.State)
	require.Len(t, actions, 4)
	assert.Equal(t, ActionSendAdvertisement, actions[0].Kind)
	assert.Equal(t, ActionSendGratuitousARP, actions[1].Kind)
	assert.Equal(t, ActionAttachAddresses, actions[2].Kind)
	assert.Equal(t, ActionArmAdvertisementTimer, actions[3].Kind)
}

func TestBackupResetsMasterDownOnHigherPriorityAdvert(t *testing.T) {
	f := FSM{State: StateBackup}
	params := defaultParams()
	pkt := &ReceivedAdvertisement{
		Advertisement: &Advertisement{Priority: 150},
		SourceIP:      netip.MustParseAddr("192.168.0.20"),
	}
	actions := f.Apply(params, Event{Kind: EventPacketReceived, Packet: pkt})
	assert.Equal(t, StateBackup, f.State)
	require.Len(t, actions, 1)
	assert.Equal(t, ActionArmMasterDownTimer, actions[0].Kind)
}

func TestBackupIgnoresLowerPriorityAdvertUnderPreempt(t *testing.T) {
	f := FSM{State: StateBackup}
	params := defaultParams()
	pkt := &ReceivedAdvertisement{
		Advertisement: &Advertisement{Priority: 50},
		SourceIP:      netip.MustParseAddr("192.168.0.20"),
	}
	actions := f.Apply(params, Event{Kind: EventPacketReceived, Packet: pkt})
	assert.Equal(t, StateBackup, f.State)
	assert.Empty(t, actions)
}

func TestBackupAcceptsLowerPriorityWhenPreemptDisabled(t *testing.T) {
	f := FSM{State: StateBackup}
	params := defaultParams()
	params.PreemptMode = false
	pkt := &ReceivedAdvertisement{
		Advertisement: &Advertisement{Priority: 50},
		SourceIP:      netip.MustParseAddr("192.168.0.20"),
	}
	actions := f.Apply(params, Event{Kind: EventPacketReceived, Packet: pkt})
	require.Len(t, actions, 1)
	assert.Equal(t, ActionArmMasterDownTimer, actions[0].Kind)
}

func TestBackupGracefulReleaseArmsSkew(t *testing.T) {
	f := FSM{State: StateBackup}
	params := defaultParams()
	pkt := &ReceivedAdvertisement{
		Advertisement: &Advertisement{Priority: 0},
		SourceIP:      netip.MustParseAddr("192.168.0.20"),
	}
	actions := f.Apply(params, Event{Kind: EventPacketReceived, Packet: pkt})
	assert.Equal(t, StateBackup, f.State)
	require.Len(t, actions, 1)
	assert.Equal(t, ActionArmMasterDownTimerSkew, actions[0].Kind)
}

func TestBackupMasterDownElectsMaster(t *testing.T) {
	f := FSM{State: StateBackup}
	actions := f.Apply(defaultParams(), Event{Kind: EventMasterDown})
	assert.Equal(t, StateMaster, f.State)
	require.Len(t, actions, 4)
	assert.Equal(t, ActionSendAdvertisement, actions[0].Kind)
	assert.Equal(t, ActionSendGratuitousARP, actions[1].Kind)
	assert.Equal(t, ActionAttachAddresses, actions[2].Kind)
	assert.Equal(t, ActionArmAdvertisementTimer, actions[3].Kind)
}

func TestMasterStepsDownOnHigherPriorityAdvert(t *testing.T) {
	f := FSM{State: StateMaster}
	params := defaultParams() // Priority 100, PrimaryIP .10
	pkt := &ReceivedAdvertisement{
		Advertisement: &Advertisement{Priority: 150},
		SourceIP:      netip.MustParseAddr("192.168.0.20"),
	}
	actions := f.Apply(params, Event{Kind: EventPacketReceived, Packet: pkt})
	assert.Equal(t, StateBackup, f.State)
	require.Len(t, actions, 2)
	assert.Equal(t, ActionDetachAddresses, actions[0].Kind)
	assert.Equal(t, ActionArmMasterDownTimer, actions[1].Kind)
}

// TestMasterTieBreakUsesLocalPrimaryIP guards REDESIGN FLAG 1: the
// tie-break must compare the peer's source IP against this VRI's own
// primary IP, never the packet's destination address.
func TestMasterTieBreakUsesLocalPrimaryIP(t *testing.T) {
	f := FSM{State: StateMaster}
	params := defaultParams()
	params.PrimaryIP = netip.MustParseAddr("192.168.0.100")

	lower := &ReceivedAdvertisement{
		Advertisement: &Advertisement{Priority: 100},
		SourceIP:      netip.MustParseAddr("192.168.0.50"),
	}
	assert.Empty(t, f.Apply(params, Event{Kind: EventPacketReceived, Packet: lower}))
	assert.Equal(t, StateMaster, f.State)

	higher := &ReceivedAdvertisement{
		Advertisement: &Advertisement{Priority: 100},
		SourceIP:      netip.MustParseAddr("192.168.0.200"),
	}
	actions := f.Apply(params, Event{Kind: EventPacketReceived, Packet: higher})
	assert.Equal(t, StateBackup, f.State)
	require.Len(t, actions, 2)
}

func TestMasterIgnoresLowerPriority(t *testing.T) {
	f := FSM{State: StateMaster}
	params := defaultParams()
	pkt := &ReceivedAdvertisement{
		Advertisement: &Advertisement{Priority: 50},
		SourceIP:      netip.MustParseAddr("192.168.0.20"),
	}
	actions := f.Apply(params, Event{Kind: EventPacketReceived, Packet: pkt})
	assert.Equal(t, StateMaster, f.State)
	assert.Empty(t, actions)
}

func TestMasterHandlesGracefulReleaseFromAnotherMaster(t *testing.T) {
	f := FSM{State: StateMaster}
	pkt := &ReceivedAdvertisement{
		Advertisement: &Advertisement{Priority: 0},
		SourceIP:      netip.MustParseAddr("192.168.0.20"),
	}
	actions := f.Apply(defaultParams(), Event{Kind: EventPacketReceived, Packet: pkt})
	assert.Equal(t, StateMaster, f.State)
	require.Len(t, actions, 2)
	assert.Equal(t, ActionSendAdvertisement, actions[0].Kind)
	assert.Equal(t, ActionArmAdvertisementTimer, actions[1].Kind)
}

func TestMasterShutdownReleasesGracefully(t *testing.T) {
	f := FSM{State: StateMaster}
	actions := f.Apply(defaultParams(), Event{Kind: EventShutdown})
	assert.Equal(t, StateInitialize, f.State)
	require.Len(t, actions, 3)
	assert.Equal(t, ActionCancelTimer, actions[0].Kind)
	assert.Equal(t, ActionSendAdvertisement, actions[1].Kind)
	require.NotNil(t, actions[1].AdvertPriority)
	assert.Equal(t, uint8(0), *actions[1].AdvertPriority)
	assert.Equal(t, ActionDetachAddresses, actions[2].Kind)
}

func TestBackupShutdownCancelsTimer(t *testing.T) {
	f := FSM{State: StateBackup}
	actions := f.Apply(defaultParams(), Event{Kind: EventShutdown})
	assert.Equal(t, StateInitialize, f.State)
	require.Len(t, actions, 1)
	assert.Equal(t, ActionCancelTimer, actions[0].Kind)
}

// TestFSMTotality enforces spec §8's totality property: every (state,
// event) pair must produce a result without panicking, and the states in
// play are always one of the three legal values.
func TestFSMTotality(t *testing.T) {
	states := []State{StateInitialize, StateBackup, StateMaster}
	events := []EventKind{EventStartup, EventShutdown, EventMasterDown, EventPacketReceived, EventAdvertisementTimer, EventNull}

	for _, s := range states {
		for _, k := range events {
			f := FSM{State: s}
			ev := Event{Kind: k}
			if k == EventPacketReceived {
				ev.Packet = &ReceivedAdvertisement{
					Advertisement: &Advertisement{Priority: 100},
					SourceIP:      netip.MustParseAddr("10.0.0.1"),
				}
			}
			assert.NotPanics(t, func() { f.Apply(defaultParams(), ev) })
			assert.Contains(t, states, f.State)
		}
	}
}

func TestMasterDownSecondsMatchesRFCFormula(t *testing.T) {
	cfg := Config{Priority: 100, AdvertInterval: 1}
	assert.InDelta(t, 3.609375, cfg.MasterDownSeconds(), 1e-6)
	assert.InDelta(t, 0.609375, cfg.SkewSeconds(), 1e-6)
}
