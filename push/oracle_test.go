package push

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/estc-blue/wire/gatt"
)

var helloChar = gatt.CharHandles{Declaration: 4, Value: 5, CCCD: 6}

func TestWantsExactMode(t *testing.T) {
	tests := []struct {
		name    string
		stored  gatt.Mode
		want    Mode
		expects bool
	}{
		{"notify wants notify", gatt.ModeNotify, Notify, true},
		{"indicate wants indicate", gatt.ModeIndicate, Indicate, true},
		{"indicate does not want notify", gatt.ModeIndicate, Notify, false},
		{"notify does not want indicate", gatt.ModeNotify, Indicate, false},
		{"both wants neither notify", gatt.ModeBoth, Notify, false},
		{"both wants neither indicate", gatt.ModeBoth, Indicate, false},
		{"disabled", gatt.ModeNone, Notify, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := gatt.NewSubscriptionStore()
			require.NoError(t, store.WriteSubscriptionConfig(1, helloChar.CCCD, gatt.EncodeMode(tt.stored)))

			got, err := Wants(store, 1, helloChar, tt.want)
			require.NoError(t, err)
			assert.Equal(t, tt.expects, got)
		})
	}
}

func TestWantsUnavailable(t *testing.T) {
	store := gatt.NewSubscriptionStore()

	got, err := Wants(store, 1, helloChar, Notify)
	assert.False(t, got)
	assert.True(t, errors.Is(err, ErrSubscriptionUnavailable))
}

func TestWantsIsPerConnection(t *testing.T) {
	store := gatt.NewSubscriptionStore()
	require.NoError(t, store.WriteSubscriptionConfig(1, helloChar.CCCD, gatt.EncodeMode(gatt.ModeNotify)))

	_, err := Wants(store, 2, helloChar, Notify)
	assert.ErrorIs(t, err, ErrSubscriptionUnavailable)
}

type failingStore struct{ err error }

func (f failingStore) ReadSubscriptionConfig(conn, cccdHandle uint16) ([]byte, error) {
	return nil, f.err
}

func TestWantsStoreFailure(t *testing.T) {
	ioErr := errors.New("flash read failed")

	got, err := Wants(failingStore{ioErr}, 1, helloChar, Notify)
	assert.False(t, got)
	assert.ErrorIs(t, err, ioErr)
	assert.NotErrorIs(t, err, ErrSubscriptionUnavailable)
	assert.False(t, IsBackpressure(err))
}

func TestWantsMalformed(t *testing.T) {
	for _, raw := range [][]byte{{}, {0x01}, {0x01, 0x00, 0x00}} {
		store := gatt.NewSubscriptionStore()
		store.RestoreSystemAttributes(1, map[uint16][]byte{helloChar.CCCD: raw})

		got, err := Wants(store, 1, helloChar, Notify)
		assert.False(t, got)
		assert.ErrorIs(t, err, ErrMalformedSubscriptionValue, "len %d", len(raw))
	}
}

func TestWantsWithoutCCCD(t *testing.T) {
	store := gatt.NewSubscriptionStore()
	char1 := gatt.CharHandles{Declaration: 2, Value: 3}

	got, err := Wants(store, 1, char1, Notify)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestWantsReadsFreshValue(t *testing.T) {
	store := gatt.NewSubscriptionStore()
	require.NoError(t, store.WriteSubscriptionConfig(1, helloChar.CCCD, gatt.EncodeMode(gatt.ModeNotify)))

	got, _ := Wants(store, 1, helloChar, Notify)
	assert.True(t, got)

	require.NoError(t, store.WriteSubscriptionConfig(1, helloChar.CCCD, gatt.EncodeMode(gatt.ModeNone)))
	got, _ = Wants(store, 1, helloChar, Notify)
	assert.False(t, got)
}
