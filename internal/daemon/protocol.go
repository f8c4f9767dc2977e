// Package daemon provides the client and protocol types for communicating with
// the capture daemon over a Unix socket using NDJSON.
package daemon

import "fmt"

// Error codes reported by the daemon in Response.Code and Event.Code.
const (
	CodePermissionDenied = "permission_denied"
	CodeNoDevice         = "no_device"
	CodeAlreadyRecording = "already_recording"
)

// Command is sent from a client to the daemon.
type Command struct {
	Cmd        string   `json:"cmd"`
	Device     string   `json:"device,omitempty"`
	Format     string   `json:"format,omitempty"`
	SampleRate int      `json:"sampleRate,omitempty"`
	Events     []string `json:"events,omitempty"`
}

// Response is returned by the daemon after processing a command.
type Response struct {
	OK         bool     `json:"ok"`
	SessionID  string   `json:"sessionId,omitempty"`
	Recording  *bool    `json:"recording,omitempty"`
	Devices    []string `json:"devices,omitempty"`
	Device     string   `json:"device,omitempty"`
	Format     string   `json:"format,omitempty"`
	SampleRate int      `json:"sampleRate,omitempty"`
	Channels   int      `json:"channels,omitempty"`
	Status     string   `json:"status,omitempty"`
	Code       string   `json:"code,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Event is streamed from the daemon to subscribed clients.
// Audio events carry one captured fragment in Data (base64 on the wire).
type Event struct {
	Event     string `json:"event"`
	SessionID string `json:"sessionId,omitempty"`
	Data      []byte `json:"data,omitempty"`
	Format    string `json:"format,omitempty"`
	Recording *bool  `json:"recording,omitempty"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
}

// CommandError is returned by Client.Do when the daemon answers ok=false.
type CommandError struct {
	Cmd     string
	Code    string
	Message string
}

func (e *CommandError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("daemon %s: %s (%s)", e.Cmd, e.Message, e.Code)
	}
	return fmt.Sprintf("daemon %s: %s", e.Cmd, e.Message)
}

// BoolPtr returns a pointer to a bool value. Convenience for building events.
func BoolPtr(b bool) *bool { return &b }
