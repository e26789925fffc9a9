// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"

	"github.com/bureau-foundation/reportbot/lib/ref"
	"github.com/bureau-foundation/reportbot/lib/secret"
)

// DirectSession is an authenticated Matrix session. The access token
// is held in a secret.Buffer; call Close when the session is no longer
// needed.
type DirectSession struct {
	client      *Client
	accessToken *secret.Buffer
	userID      ref.UserID
	deviceID    string

	transactionCounter atomic.Int64
}

// UserID returns the session's Matrix user ID.
func (s *DirectSession) UserID() ref.UserID {
	return s.userID
}

// DeviceID returns the session's device ID. Empty when the session was
// resumed from a token whose device was not recorded.
func (s *DirectSession) DeviceID() string {
	return s.deviceID
}

// AccessToken returns a heap copy of the access token, for persisting
// it. Do not log the result.
func (s *DirectSession) AccessToken() string {
	return s.accessToken.String()
}

// Close releases the access token memory. Idempotent.
func (s *DirectSession) Close() error {
	if s.accessToken != nil {
		return s.accessToken.Close()
	}
	return nil
}

// WhoAmI returns the user the access token belongs to. A revoked token
// fails with M_UNKNOWN_TOKEN.
func (s *DirectSession) WhoAmI(ctx context.Context) (*WhoAmIResponse, error) {
	body, err := s.client.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/account/whoami", s.accessToken, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: whoami failed: %w", err)
	}

	var response WhoAmIResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse whoami response: %w", err)
	}
	return &response, nil
}

// JoinRoom joins a room by ID. Joining a room the user is already in
// succeeds. Returns the joined room ID.
func (s *DirectSession) JoinRoom(ctx context.Context, roomID ref.RoomID) (ref.RoomID, error) {
	path := "/_matrix/client/v3/join/" + url.PathEscape(roomID.String())
	body, err := s.client.doIdempotent(ctx, http.MethodPost, path, s.accessToken, struct{}{})
	if err != nil {
		return ref.RoomID{}, fmt.Errorf("messaging: join room %s failed: %w", roomID, err)
	}

	var response JoinResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.RoomID{}, fmt.Errorf("messaging: failed to parse join response: %w", err)
	}
	return response.RoomID, nil
}

// SendMessage sends an m.room.message with a session-unique
// transaction ID. Returns the event ID.
func (s *DirectSession) SendMessage(ctx context.Context, roomID ref.RoomID, content MessageContent) (ref.EventID, error) {
	return s.SendMessageWithTransaction(ctx, roomID, s.nextTransactionID(), content)
}

// SendMessageWithTransaction sends an m.room.message under the given
// transaction ID. The homeserver returns the original event for a
// repeated transaction ID from the same device, so retries and resends
// with a stable ID never post twice.
func (s *DirectSession) SendMessageWithTransaction(ctx context.Context, roomID ref.RoomID, transactionID string, content MessageContent) (ref.EventID, error) {
	if transactionID == "" {
		return ref.EventID{}, fmt.Errorf("messaging: transaction ID is required")
	}
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/send/%s/%s",
		url.PathEscape(roomID.String()),
		url.PathEscape(EventTypeRoomMessage.String()),
		url.PathEscape(transactionID),
	)

	body, err := s.client.doIdempotent(ctx, http.MethodPut, path, s.accessToken, content)
	if err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: send event to %s failed: %w", roomID, err)
	}

	var response SendEventResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: failed to parse send response: %w", err)
	}
	return response.EventID, nil
}

func (s *DirectSession) nextTransactionID() string {
	counter := s.transactionCounter.Add(1)
	return fmt.Sprintf("relay-%d-%d", s.client.clock.Now().UnixMilli(), counter)
}
