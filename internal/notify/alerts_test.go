package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type alert struct {
	subject string
	body    string
}

type recordingChannel struct {
	mu     sync.Mutex
	alerts []alert
	err    error
}

func (r *recordingChannel) Notify(_ context.Context, subject, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alert{subject, body})
	return r.err
}

func (r *recordingChannel) got() []alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]alert(nil), r.alerts...)
}

func TestCoalescer(t *testing.T) {
	logger := zerolog.Nop()
	ch := &recordingChannel{}
	failing := &recordingChannel{err: errors.New("smtp down")}
	c := NewCoalescer(time.Hour, 2, &logger, failing, ch)

	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	c.Alert(ctx, "fehler 1", "a")
	c.Alert(ctx, "fehler 2", "b")
	c.Alert(ctx, "fehler 3", "c")
	c.Alert(ctx, "fehler 4", "d")

	require.Len(t, ch.got(), 2, "burst allows two alerts")
	assert.Len(t, failing.got(), 2, "a failing channel does not block the others")
	assert.Equal(t, 2, c.pending())

	now = now.Add(time.Hour)
	c.Alert(ctx, "fehler 5", "e")

	alerts := ch.got()
	require.Len(t, alerts, 3)
	assert.Equal(t, "fehler 5", alerts[2].subject)
	assert.Contains(t, alerts[2].body, "2 weitere Meldungen")
	assert.Zero(t, c.pending())
}

func TestCoalescerWithoutChannels(t *testing.T) {
	logger := zerolog.Nop()
	c := NewCoalescer(time.Minute, 1, &logger)
	c.Alert(context.Background(), "x", "y")
	assert.Zero(t, c.pending())
}
