package node

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cs244-team/sidekick/api"
)

type fakeSysctl struct {
	values map[string]string
	writes []string
	fail   error
}

func newFakeSysctl() *fakeSysctl {
	return &fakeSysctl{values: map[string]string{}}
}

func (f *fakeSysctl) Set(netns, key, value string) error {
	if f.fail != nil {
		return f.fail
	}
	f.values[netns+"|"+key] = value
	f.writes = append(f.writes, value)
	return nil
}

func (f *fakeSysctl) forward(netns string) string {
	return f.values[netns+"|"+ipForwardKey]
}

func newTestRouter() (*Router, *fakeSysctl) {
	s := newFakeSysctl()
	n := &api.Node{Name: "router", Role: api.RoleRouter, NetNs: "/var/run/netns/test-router"}
	return NewRouter(n, s), s
}

func TestRouterLifecycle(t *testing.T) {
	r, s := newTestRouter()
	assert.False(t, r.Forwarding())

	require.NoError(t, r.Activate())
	assert.True(t, r.Forwarding())
	assert.Equal(t, "1", s.forward(r.Node().NetNs))

	require.NoError(t, r.Terminate(nil))
	assert.False(t, r.Forwarding())
	assert.Equal(t, "0", s.forward(r.Node().NetNs))
	assert.Equal(t, []string{"1", "0"}, s.writes)
}

func TestRouterDoubleActivate(t *testing.T) {
	r, _ := newTestRouter()
	require.NoError(t, r.Activate())
	assert.ErrorIs(t, r.Activate(), ErrRouterActive)
	assert.True(t, r.Forwarding())
}

func TestRouterReleasesOnTeardownError(t *testing.T) {
	r, s := newTestRouter()
	require.NoError(t, r.Activate())

	boom := errors.New("kill failed")
	err := r.Terminate(func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, r.Forwarding())
	assert.Equal(t, "0", s.forward(r.Node().NetNs))
}

func TestRouterReleasesOnPanic(t *testing.T) {
	r, s := newTestRouter()
	require.NoError(t, r.Activate())

	assert.Panics(t, func() {
		_ = r.Terminate(func() error { panic("teardown blew up") })
	})
	assert.False(t, r.Forwarding())
	assert.Equal(t, "0", s.forward(r.Node().NetNs))
}

func TestRouterReleaseErrorJoined(t *testing.T) {
	r, s := newTestRouter()
	require.NoError(t, r.Activate())

	s.fail = errors.New("read-only proc")
	boom := errors.New("kill failed")
	err := r.Terminate(func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, s.fail)
	assert.False(t, r.Forwarding())
}

func TestRouterReactivateAfterTerminate(t *testing.T) {
	r, s := newTestRouter()
	for i := 0; i < 2; i++ {
		require.NoError(t, r.Activate())
		assert.True(t, r.Forwarding())
		require.NoError(t, r.Terminate(nil))
		assert.False(t, r.Forwarding())
	}
	assert.Equal(t, []string{"1", "0", "1", "0"}, s.writes)
}

func TestRouterActivateFailure(t *testing.T) {
	r, s := newTestRouter()
	s.fail = errors.New("no such namespace")
	assert.Error(t, r.Activate())
	assert.False(t, r.Forwarding())
}
