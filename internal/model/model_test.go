package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttendanceEventClearedFlagRoundTrips(t *testing.T) {
	evt := AttendanceEvent{
		ID:               "evt-1",
		UFID:             "12345678",
		Timestamp:        time.Date(2024, 4, 2, 17, 0, 0, 0, time.UTC),
		Action:           ActionSignOut,
		PendingTimestamp: true,
	}

	// Decode the provisional event into a buffer, then decode the cleared
	// version into the same buffer, as list-store readers do.
	raw, err := json.Marshal([]AttendanceEvent{evt})
	require.NoError(t, err)
	var events []AttendanceEvent
	require.NoError(t, json.Unmarshal(raw, &events))
	require.True(t, events[0].PendingTimestamp)

	evt.PendingTimestamp = false
	raw, err = json.Marshal([]AttendanceEvent{evt})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &events))
	assert.False(t, events[0].PendingTimestamp)
}

func TestDisplayStatus(t *testing.T) {
	deadline := time.Date(2024, 4, 3, 9, 0, 0, 0, time.UTC)
	rec := PendingSignout{Status: StatusPending, Deadline: deadline}

	assert.Equal(t, StatusPending, rec.DisplayStatus(deadline))
	assert.Equal(t, StatusExpired, rec.DisplayStatus(deadline.Add(time.Second)))

	rec.Status = StatusResolved
	assert.Equal(t, StatusResolved, rec.DisplayStatus(deadline.Add(time.Second)))
}
