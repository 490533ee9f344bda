package epoch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"postchain.dev/node/consensus"
)

func fixedClock(t int64) func() int64 {
	return func() int64 { return t }
}

func TestNewManager_SeedsGenesisChallenge(t *testing.T) {
	genesis, err := consensus.DeriveGenesisChallenge("test-network")
	require.NoError(t, err)
	m := NewManager(Config{DurationSecs: 10}, genesis, fixedClock(100))
	snap := m.Current()
	require.Equal(t, consensus.Epoch(0), snap.Epoch)
	require.Equal(t, genesis, snap.Challenge, "Challenge should be the genesis challenge")
	require.Equal(t, int64(100), snap.StartTime)
}

func TestManager_Advance(t *testing.T) {
	genesis, err := consensus.DeriveGenesisChallenge("test-network")
	require.NoError(t, err)
	clockVal := int64(100)
	m := NewManager(Config{DurationSecs: 10}, genesis, func() int64 { return clockVal })

	var parent consensus.Hash32
	parent[0] = 0xaa

	clockVal = 150
	snap, err := m.Advance(parent)
	require.NoError(t, err)
	require.Equal(t, consensus.Epoch(1), snap.Epoch)
	require.Equal(t, int64(150), snap.StartTime)

	want, err := consensus.DeriveChallenge(parent, 1)
	require.NoError(t, err)
	require.Equal(t, want, snap.Challenge, "Advance() should derive the challenge from (parentHash, new epoch)")
}

func TestManager_Expired(t *testing.T) {
	genesis, err := consensus.DeriveGenesisChallenge("test-network")
	require.NoError(t, err)
	clockVal := int64(0)
	m := NewManager(Config{DurationSecs: 10}, genesis, func() int64 { return clockVal })

	require.False(t, m.Expired(), "fresh epoch should not be expired")
	clockVal = 9
	require.False(t, m.Expired(), "epoch should not be expired just under the duration")
	clockVal = 10
	require.True(t, m.Expired(), "epoch should be expired at exactly the configured duration")
}

func TestManager_SubscribeReceivesAdvanceEvents(t *testing.T) {
	genesis, err := consensus.DeriveGenesisChallenge("test-network")
	require.NoError(t, err)
	m := NewManager(Config{DurationSecs: 10}, genesis, fixedClock(0))

	var got ChallengeAvailable
	received := false
	m.Subscribe(func(e ChallengeAvailable) {
		got = e
		received = true
	})

	var parent consensus.Hash32
	parent[0] = 0x01
	snap, err := m.Advance(parent)
	require.NoError(t, err)
	require.True(t, received, "subscriber should have received a ChallengeAvailable event")
	require.Equal(t, snap.Epoch, got.Epoch)
	require.Equal(t, snap.Challenge, got.Challenge)
	require.Equal(t, snap.StartTime, got.StartTime)
}

func TestManager_AdvanceSequence(t *testing.T) {
	genesis, err := consensus.DeriveGenesisChallenge("test-network")
	require.NoError(t, err)
	m := NewManager(Config{DurationSecs: 10}, genesis, fixedClock(0))

	var parent consensus.Hash32
	for i := 0; i < 3; i++ {
		snap, err := m.Advance(parent)
		require.NoError(t, err)
		require.Equal(t, consensus.Epoch(i+1), snap.Epoch)
		parent = snap.Challenge
	}
}
