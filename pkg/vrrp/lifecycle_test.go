package vrrp

import (
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nullConn is a MsgConn test double whose ReadAdvertisement blocks until
// either a queued advertisement is delivered or Close is called.
type nullConn struct {
	in     chan *ReceivedAdvertisement
	closed chan struct{}
	sent   []*Advertisement
}

func newNullConn() *nullConn {
	return &nullConn{in: make(chan *ReceivedAdvertisement, 4), closed: make(chan struct{})}
}

func (c *nullConn) WriteAdvertisement(a *Advertisement) error {
	c.sent = append(c.sent, a)
	return nil
}

func (c *nullConn) ReadAdvertisement() (*ReceivedAdvertisement, bool, error) {
	select {
	case adv := <-c.in:
		return adv, true, nil
	case <-c.closed:
		return nil, false, &TransportError{Reason: "closed"}
	}
}

func (c *nullConn) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	return nil
}

func testInterface() *net.Interface {
	return &net.Interface{Name: "lo0", HardwareAddr: net.HardwareAddr{0, 1, 2, 3, 4, 5}}
}

func newTestVRI(t *testing.T, priority uint8) (*VRI, *nullConn, *NullEffector, *NullAnnouncer) {
	t.Helper()
	cfg := Config{
		Name:           "VR-test",
		VRID:           51,
		InterfaceName:  "lo0",
		IPAddresses:    []netip.Prefix{netip.MustParsePrefix("192.168.100.100/24")},
		Priority:       priority,
		AdvertInterval: 1,
		PreemptMode:    true,
	}
	conn := newNullConn()
	effector := &NullEffector{}
	announcer := &NullAnnouncer{}
	vri, err := NewVRI(cfg, testInterface(), netip.MustParseAddr("192.168.100.10"), conn, effector, announcer)
	require.NoError(t, err)
	return vri, conn, effector, announcer
}

func TestLifecycleOwnerBecomesMasterAndAttaches(t *testing.T) {
	vri, conn, effector, announcer := newTestVRI(t, OwnerPriority)
	vri.Start()
	defer vri.Stop()

	assert.Equal(t, StateMaster, vri.State())
	assert.Len(t, conn.sent, 1)
	assert.Len(t, effector.Attached, 1)
	assert.Len(t, announcer.AnnouncedAll, 1)
}

func TestLifecycleNonOwnerStartsBackupAndDetaches(t *testing.T) {
	vri, _, effector, _ := newTestVRI(t, DefaultPriority)
	vri.Start()
	defer vri.Stop()

	assert.Equal(t, StateBackup, vri.State())
	assert.Len(t, effector.Detached, 1)
}

func TestLifecycleMasterDownPromotesBackup(t *testing.T) {
	vri, conn, effector, announcer := newTestVRI(t, DefaultPriority)
	vri.Start()
	defer vri.Stop()

	require.Equal(t, StateBackup, vri.State())
	vri.observe(Event{Kind: EventMasterDown})

	assert.Equal(t, StateMaster, vri.State())
	assert.Len(t, conn.sent, 1)
	assert.Len(t, effector.Attached, 1)
	assert.Len(t, announcer.AnnouncedAll, 1)
}

func TestLifecycleGracefulShutdownFromMasterSendsZeroPriorityAdvert(t *testing.T) {
	vri, conn, effector, _ := newTestVRI(t, OwnerPriority)
	vri.Start()

	vri.Stop()

	require.Len(t, conn.sent, 2) // startup advert + release advert
	last := conn.sent[len(conn.sent)-1]
	assert.Equal(t, uint8(0), last.Priority)
	assert.Len(t, effector.Detached, 1)
	assert.Equal(t, StateInitialize, vri.State())
}

func TestReceiveVRRPDropsWrongVRID(t *testing.T) {
	vri, conn, _, _ := newTestVRI(t, DefaultPriority)
	vri.Start()
	defer vri.Stop()
	require.Equal(t, StateBackup, vri.State())

	conn.in <- &ReceivedAdvertisement{
		Advertisement: &Advertisement{WireVersion: Version, WireType: TypeAdvertisement, VirtualRouterID: 99, Priority: 200, AdvertInt: 1},
		SourceIP:      netip.MustParseAddr("192.168.100.20"),
	}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateBackup, vri.State())
}

func TestReceiveVRRPAcceptsMatchingAdvertisement(t *testing.T) {
	vri, conn, _, _ := newTestVRI(t, DefaultPriority)
	vri.Start()
	defer vri.Stop()
	require.Equal(t, StateBackup, vri.State())

	conn.in <- &ReceivedAdvertisement{
		Advertisement: &Advertisement{WireVersion: Version, WireType: TypeAdvertisement, VirtualRouterID: 51, Priority: 200, AdvertInt: 1},
		SourceIP:      netip.MustParseAddr("192.168.100.20"),
	}
	require.Eventually(t, func() bool {
		return vri.readTimer().Kind == TimerMasterDown
	}, time.Second, 10*time.Millisecond)
}

func TestReceiveARPMasterReplies(t *testing.T) {
	vri, _, _, announcer := newTestVRI(t, OwnerPriority)
	announcer.Requests = make(chan ARPRequest, 1)
	vri.Start()
	defer vri.Stop()

	announcer.Requests <- ARPRequest{Target: netip.MustParseAddr("192.168.100.100"), MAC: net.HardwareAddr{9, 9, 9, 9, 9, 9}}

	require.Eventually(t, func() bool {
		return len(announcer.Replied) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestReceiveARPBackupStaysSilent(t *testing.T) {
	vri, _, _, announcer := newTestVRI(t, DefaultPriority)
	announcer.Requests = make(chan ARPRequest, 1)
	vri.Start()
	defer vri.Stop()

	announcer.Requests <- ARPRequest{Target: netip.MustParseAddr("192.168.100.100"), MAC: net.HardwareAddr{9, 9, 9, 9, 9, 9}}
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, announcer.Replied)
}
