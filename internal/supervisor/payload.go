package supervisor

import "fmt"

// Connection describes how an external client reaches the ready server.
type Connection struct {
	Protocol string `json:"protocol"`
	Host     string `json:"host"`
	Port     string `json:"port"`
	URL      string `json:"url"`
}

// ConnectionInfo is the progress payload reported once readiness succeeds.
type ConnectionInfo struct {
	Status     string     `json:"status"`
	SessionID  string     `json:"session_id"`
	Connection Connection `json:"connection"`
	ServerPort int        `json:"server_port"`
	Message    string     `json:"message"`
}

// newConnectionInfo composes the payload from the platform-provided
// public endpoint. The server speaks WebSocket over TLS.
func newConnectionInfo(sessionID, publicHost, publicPort string, serverPort int) ConnectionInfo {
	return ConnectionInfo{
		Status:    "running",
		SessionID: sessionID,
		Connection: Connection{
			Protocol: "wss",
			Host:     publicHost,
			Port:     publicPort,
			URL:      fmt.Sprintf("wss://%s:%s", publicHost, publicPort),
		},
		ServerPort: serverPort,
		Message:    "PersonaPlex server is running. Connect via WebSocket.",
	}
}

// Result is the terminal payload of one session. Exactly one Result is
// produced per session, whatever path ends it.
type Result any

// StoppedResult reports that the monitoring loop ended because the
// server exited on its own, or because the session was cancelled.
type StoppedResult struct {
	Status     string `json:"status"`
	Reason     string `json:"reason"`
	ReturnCode int    `json:"return_code,omitempty"`
	SessionID  string `json:"session_id"`
}

// ErrorResult reports a failure observed after monitoring began.
type ErrorResult struct {
	Status    string `json:"status"`
	Error     string `json:"error"`
	SessionID string `json:"session_id"`
}

// StartFailure reports that launch or readiness failed before monitoring
// began; no connection info was ever reported for the session.
type StartFailure struct {
	Error string `json:"error"`
}
