package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seat-booking/internal/queue"
)

func TestPrintDeadLetters(t *testing.T) {
	var buf bytes.Buffer
	ts := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, printDeadLetters(&buf, []queue.DeadLetter{
		{BookingID: "b-1", Type: queue.MessageType, Reason: "rejected", Queue: "booking_queue", Count: 1, Time: ts},
		{BookingID: "garbage"},
	}))
	out := buf.String()
	assert.Contains(t, out, "BOOKING")
	assert.Contains(t, out, "b-1")
	assert.Contains(t, out, "2026-10-01T12:00:00Z")
	assert.Contains(t, out, "2 dead letter(s)")
}

func TestRunRequiresCommand(t *testing.T) {
	assert.Error(t, run(nil, &bytes.Buffer{}))
}
