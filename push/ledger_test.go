package push

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerStartsFull(t *testing.T) {
	l := NewLedger(3)
	assert.Equal(t, uint32(3), l.Available())
	assert.Equal(t, uint32(3), l.Capacity())
}

func TestLedgerReserveUntilEmpty(t *testing.T) {
	l := NewLedger(2)

	require.NoError(t, l.TryReserve())
	require.NoError(t, l.TryReserve())
	assert.Equal(t, uint32(0), l.Available())

	err := l.TryReserve()
	assert.True(t, errors.Is(err, ErrOutOfCredits))
	assert.Equal(t, uint32(0), l.Available(), "failed reserve must not underflow")
}

func TestLedgerReleaseSaturates(t *testing.T) {
	l := NewLedger(2)
	require.NoError(t, l.TryReserve())

	applied := l.Release(5)
	assert.Equal(t, uint32(1), applied)
	assert.Equal(t, uint32(2), l.Available())

	assert.Equal(t, uint32(0), l.Release(1), "release on a full ledger is a no-op")
	assert.Equal(t, uint32(2), l.Available())
}

func TestLedgerReleaseZero(t *testing.T) {
	l := NewLedger(4)
	require.NoError(t, l.TryReserve())

	for i := 0; i < 10; i++ {
		assert.Equal(t, uint32(0), l.Release(0))
	}
	assert.Equal(t, uint32(3), l.Available())
}

func TestLedgerReset(t *testing.T) {
	l := NewLedger(2)
	require.NoError(t, l.TryReserve())
	require.NoError(t, l.TryReserve())

	l.Reset()
	assert.Equal(t, uint32(2), l.Available())
}

func TestLedgerReleaseHugeCount(t *testing.T) {
	l := NewLedger(255)
	for i := 0; i < 255; i++ {
		require.NoError(t, l.TryReserve())
	}
	l.Release(^uint32(0))
	assert.Equal(t, uint32(255), l.Available())
}

func TestLedgerInvariantRandomOps(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for _, capacity := range []uint32{1, 2, 7, 255} {
		l := NewLedger(capacity)
		for i := 0; i < 5000; i++ {
			switch rng.Intn(3) {
			case 0:
				before := l.Available()
				err := l.TryReserve()
				if before == 0 {
					require.ErrorIs(t, err, ErrOutOfCredits)
				} else {
					require.NoError(t, err)
					require.Equal(t, before-1, l.Available())
				}
			case 1:
				l.Release(uint32(rng.Intn(int(capacity) + 3)))
			case 2:
				if rng.Intn(20) == 0 {
					l.Reset()
				}
			}
			require.LessOrEqual(t, l.Available(), l.Capacity(), "capacity %d step %d", capacity, i)
		}
	}
}
