// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"github.com/bureau-foundation/reportbot/lib/ref"
)

// EventTypeRoomMessage is the event type of every notification the
// relay posts.
const EventTypeRoomMessage ref.EventType = "m.room.message"

// FormatHTML is the only formatted-body format defined by Matrix.
const FormatHTML = "org.matrix.custom.html"

// MessageContent is the content of an m.room.message event. Format and
// FormattedBody are set together for rich messages; Body is the
// plain-text fallback every client can show.
type MessageContent struct {
	MsgType       string `json:"msgtype"`
	Body          string `json:"body"`
	Format        string `json:"format,omitempty"`
	FormattedBody string `json:"formatted_body,omitempty"`
}

// NewTextMessage creates a plain text message.
func NewTextMessage(body string) MessageContent {
	return MessageContent{MsgType: "m.text", Body: body}
}

// NewHTMLMessage creates a text message with an HTML rendering.
func NewHTMLMessage(plain, html string) MessageContent {
	return MessageContent{
		MsgType:       "m.text",
		Body:          plain,
		Format:        FormatHTML,
		FormattedBody: html,
	}
}

// LoginRequest is the body of POST /login for m.login.password.
type LoginRequest struct {
	Type                     string         `json:"type"`
	Identifier               UserIdentifier `json:"identifier"`
	Password                 string         `json:"password"`
	InitialDeviceDisplayName string         `json:"initial_device_display_name,omitempty"`
}

// UserIdentifier identifies the account for password login.
type UserIdentifier struct {
	Type string `json:"type"`
	User string `json:"user"`
}

// AuthResponse is returned by Login.
type AuthResponse struct {
	UserID      ref.UserID `json:"user_id"`
	AccessToken string     `json:"access_token"`
	DeviceID    string     `json:"device_id"`
}

// JoinResponse is returned by JoinRoom.
type JoinResponse struct {
	RoomID ref.RoomID `json:"room_id"`
}

// SendEventResponse is returned by the send endpoints.
type SendEventResponse struct {
	EventID ref.EventID `json:"event_id"`
}

// WhoAmIResponse is returned by WhoAmI.
type WhoAmIResponse struct {
	UserID   ref.UserID `json:"user_id"`
	DeviceID string     `json:"device_id,omitempty"`
}

// ServerVersionsResponse is returned by ServerVersions.
type ServerVersionsResponse struct {
	Versions         []string        `json:"versions"`
	UnstableFeatures map[string]bool `json:"unstable_features,omitempty"`
}
