package realtime

// ChannelState is the connection state of the realtime channel.
type ChannelState string

const (
	StateDisconnected ChannelState = "disconnected"
	StateConnecting   ChannelState = "connecting"
	StateConnected    ChannelState = "connected"
	StateError        ChannelState = "error"
)

// Mode is the transport currently delivering events.
type Mode string

const (
	ModeNone      Mode = "none"
	ModeWebSocket Mode = "websocket"
	ModePolling   Mode = "polling"
)

// ChannelStatus describes the channel at one point in time.
type ChannelStatus struct {
	State             ChannelState `json:"state"`
	Mode              Mode         `json:"mode"`
	ReconnectAttempts int          `json:"reconnect_attempts"`
	PollCount         int          `json:"poll_count"`
	LastError         string       `json:"last_error,omitempty"`
}

func idleStatus() ChannelStatus {
	return ChannelStatus{State: StateDisconnected, Mode: ModeNone}
}
