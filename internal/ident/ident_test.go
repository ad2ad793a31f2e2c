package ident

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	ids := []int32{0, 1, 42, 1<<31 - 1, -1, -2147483648}

	for _, id := range ids {
		local := ToLocal(id)
		remote, err := ToRemote(local)
		require.NoError(t, err)
		require.Equal(t, id, remote)

		// toLocal(toRemote(toLocal(x))) == toLocal(x)
		require.Equal(t, local, ToLocal(remote))
	}
}

func TestToRemoteRejectsForeignUUID(t *testing.T) {
	foreign := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

	_, err := ToRemote(foreign)
	require.Error(t, err)
	require.False(t, IsRemoteDerived(foreign))
}

func TestByteOrder(t *testing.T) {
	local := ToLocal(42)

	// Big-endian in the last four bytes, everything else zero.
	require.Equal(t, "00000000-0000-0000-0000-00000000002a", local.String())
}
