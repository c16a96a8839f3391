package push

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreference(t *testing.T) {
	assert.Equal(t, []TransportKind{TransportWebSocket, TransportPolling}, Preference(EnvDevelopment))
	assert.Equal(t, []TransportKind{TransportPolling, TransportWebSocket}, Preference(EnvProduction))
	assert.Equal(t, Preference(EnvDevelopment), Preference("staging"), "unknown environments fall back to development")
}

func TestParseTransports(t *testing.T) {
	kinds, err := ParseTransports([]string{"polling", "websocket"})
	require.NoError(t, err)
	assert.Equal(t, []TransportKind{TransportPolling, TransportWebSocket}, kinds)

	_, err = ParseTransports([]string{"sse"})
	assert.Error(t, err)
}

func TestEventPayload(t *testing.T) {
	ev, err := NewEvent("messagesRead", map[string]string{"userId": "u-1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"userId":"u-1"}`, string(ev.Data))

	var payload struct {
		UserID string `json:"userId"`
	}
	require.NoError(t, ev.Decode(&payload))
	assert.Equal(t, "u-1", payload.UserID)

	bare, err := NewEvent("newMessage", nil)
	require.NoError(t, err)
	assert.Nil(t, bare.Data)
	assert.Error(t, bare.Decode(&payload))
}

func TestEndpointURL(t *testing.T) {
	tests := []struct {
		base      string
		suffix    string
		websocket bool
		expected  string
	}{
		{"http://localhost:5000/realtime", "ws", true, "ws://localhost:5000/realtime/ws"},
		{"https://lms.example/realtime/", "ws", true, "wss://lms.example/realtime/ws"},
		{"wss://lms.example/realtime", "poll", false, "https://lms.example/realtime/poll"},
		{"http://localhost:5000", "poll", false, "http://localhost:5000/poll"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			got, err := endpointURL(tt.base, tt.suffix, tt.websocket)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "unknown", State(42).String())
}
