// Package types holds the websocket frames exchanged with arena clients.
package types

import "github.com/DoyleJ11/meme-arena/internal/arena"

const (
	FrameSendChat      = "SendChat"
	FrameSetNewMessage = "SetNewMessage"
	FrameAdvanceCard   = "AdvanceCard"

	FrameStateSnapshot = "StateSnapshot"
	FrameError         = "Error"
)

type ClientMessage struct {
	Type            string `json:"type"`
	Message         string `json:"message,omitempty"`
	ClientMessageID string `json:"client_message_id,omitempty"`
	Text            string `json:"text"`
}

type ServerMessage struct {
	Type    string       `json:"type"` // "StateSnapshot" | "Error"
	Version int          `json:"version,omitempty"`
	State   *arena.State `json:"state,omitempty"`
	Error   string       `json:"error,omitempty"`
}

func Snapshot(version int, s arena.State) ServerMessage {
	return ServerMessage{Type: FrameStateSnapshot, Version: version, State: &s}
}

func Error(msg string) ServerMessage {
	return ServerMessage{Type: FrameError, Error: msg}
}
