// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"strings"

	"github.com/bureau-foundation/reportbot/lib/ref"
	"github.com/bureau-foundation/reportbot/lib/statefile"
)

// CredentialKind says where the next session comes from.
type CredentialKind int

const (
	// NoCredentials means the next session needs a password login.
	NoCredentials CredentialKind = iota

	// CachedCredentials means a persisted access token is available.
	CachedCredentials
)

func (k CredentialKind) String() string {
	switch k {
	case NoCredentials:
		return "none"
	case CachedCredentials:
		return "cached"
	default:
		return "unknown"
	}
}

// Credentials is the session the deliverer will use. UserID, DeviceID
// and AccessToken are only meaningful when Kind is CachedCredentials.
type Credentials struct {
	Kind        CredentialKind
	UserID      ref.UserID
	DeviceID    string
	AccessToken string
}

// CredentialStore persists the session produced by a password login.
// *statefile.Tracker implements it.
type CredentialStore interface {
	StoreCredentials(statefile.Credentials) error
}

// CredentialsFromState picks the starting credentials. A missing state,
// a state without a token, or a token issued by a different homeserver
// all mean NoCredentials. A state that does not record its homeserver
// is assumed to belong to the configured one.
func CredentialsFromState(state *statefile.State, homeserverURL string) Credentials {
	if !state.HasCredentials() {
		return Credentials{Kind: NoCredentials}
	}
	if state.HomeserverURL != "" && normalizeURL(state.HomeserverURL) != normalizeURL(homeserverURL) {
		return Credentials{Kind: NoCredentials}
	}
	return Credentials{
		Kind:        CachedCredentials,
		UserID:      state.UserID,
		DeviceID:    state.DeviceID,
		AccessToken: state.AccessToken,
	}
}

func normalizeURL(raw string) string {
	return strings.TrimRight(raw, "/")
}
