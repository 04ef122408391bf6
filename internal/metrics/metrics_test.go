package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.SeatLockOps.WithLabelValues("acquire", "ok").Inc()
	m.SeatLockOps.WithLabelValues("acquire", "held").Inc()
	m.BookingsTotal.WithLabelValues("conflict").Inc()
	m.RoomMembers.Set(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SeatLockOps.WithLabelValues("acquire", "held")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RoomMembers))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["seat_lock_operations_total"])
	assert.True(t, names["bookings_total"])
	assert.True(t, names["room_members"])
}

func TestNewWithRegistry_DuplicatePanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewWithRegistry(reg)
	assert.Panics(t, func() { NewWithRegistry(reg) })
	assert.NotPanics(t, func() { Discard(); Discard() })
}
