package progress

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatSpeed(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{12.5, "12.5"},
		{3333.333, "3333.333"},
		{100, "100"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatSpeed(tt.in))
	}
}

type capturePusher struct {
	payloads [][]byte
}

func (c *capturePusher) Push(_ context.Context, payload []byte) error {
	c.payloads = append(c.payloads, payload)
	return nil
}

func (c *capturePusher) messages(t *testing.T) []Message {
	t.Helper()
	out := make([]Message, len(c.payloads))
	for i, p := range c.payloads {
		require.NoError(t, json.Unmarshal(p, &out[i]))
	}
	return out
}

func TestRemoteLifecycle(t *testing.T) {
	pusher := &capturePusher{}
	r := NewRemote(context.Background(), pusher)

	r.Started(7, "corp.example.com")
	r.Finished()

	msgs := pusher.messages(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, "LDAP", msgs[0].Type)
	assert.Equal(t, MsgStarted, msgs[0].MsgType)
	assert.EqualValues(t, 7, msgs[0].ADID)
	assert.Equal(t, "corp.example.com", msgs[0].DomainName)
	assert.Equal(t, MsgFinished, msgs[1].MsgType)
}

func TestRemoteSamplesEveryHundredItems(t *testing.T) {
	pusher := &capturePusher{}
	r := NewRemote(context.Background(), pusher)
	clock := time.Unix(1000, 0)
	r.now = func() time.Time { return clock }

	r.Started(7, "corp.example.com")
	clock = clock.Add(10 * time.Second)

	snap := Snapshot{Finished: []string{"adinfo"}, Running: []string{"users", "groups"}}
	for i := 0; i < 250; i++ {
		r.Item(snap)
	}

	msgs := pusher.messages(t)
	// STARTED plus samples at item 100 and 200
	require.Len(t, msgs, 3)
	first := msgs[1]
	assert.Equal(t, MsgProgress, first.MsgType)
	assert.EqualValues(t, 100, first.TotalFinished)
	assert.Equal(t, "10", first.Speed) // 100 items over 10s
	assert.Equal(t, []string{"adinfo"}, first.Finished)
	assert.Equal(t, []string{"users", "groups"}, first.Running)

	second := msgs[2]
	assert.EqualValues(t, 200, second.TotalFinished)
}

func TestTTYThrottling(t *testing.T) {
	var buf bytes.Buffer
	tty := NewTTY(&buf)
	tty.Started(7, "corp.example.com")

	snap := Snapshot{Finished: []string{"adinfo"}, Running: []string{"users"}}
	for i := 0; i < 99; i++ {
		tty.Item(snap)
	}
	// below the refresh threshold nothing beyond the banner is drawn
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))

	tty.Item(snap)
	assert.Contains(t, buf.String(), "objects: 100")

	tty.Finished()
	assert.Contains(t, buf.String(), "done, 100 objects")
}
