package proc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgvString(t *testing.T) {
	a := NewArgv("../build/src/sidekick_proxy", "--interface", "router-eth0",
		"--filter", "ip and udp and not dst net 192.168 and not dst net 224",
		"--quack", "2", "--threshold", "8")

	assert.Equal(t,
		"../build/src/sidekick_proxy --interface router-eth0 "+
			"--filter 'ip and udp and not dst net 192.168 and not dst net 224' "+
			"--quack 2 --threshold 8",
		a.String())
}

func TestArgvStringSplitsBack(t *testing.T) {
	a := NewArgv("/usr/bin/webrtc_server", "--rtt", "52", "--port", "9000", "--tag", "a b")
	args, err := SplitArgs(a.String())
	require.NoError(t, err)
	assert.Equal(t, append([]string{a.P}, a.V...), args)
}

func TestSplitArgs(t *testing.T) {
	args, err := SplitArgs(`--verbose --name "hello world"`)
	require.NoError(t, err)
	assert.Equal(t, []string{"--verbose", "--name", "hello world"}, args)

	args, err = SplitArgs("")
	require.NoError(t, err)
	assert.Nil(t, args)
}
