// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/reportbot/lib/eventreport"
	"github.com/bureau-foundation/reportbot/lib/ref"
	"github.com/bureau-foundation/reportbot/lib/secret"
	"github.com/bureau-foundation/reportbot/lib/statefile"
	"github.com/bureau-foundation/reportbot/messaging"
)

var (
	// ErrAuthFailed means the homeserver rejected the password login.
	// Retrying cannot help; the relay exits.
	ErrAuthFailed = errors.New("matrix authentication failed")

	// ErrSend means a delivery did not complete. The report is retried
	// on the next poll.
	ErrSend = errors.New("matrix delivery failed")
)

// Config holds the parameters for a Deliverer.
type Config struct {
	// Client is the homeserver the relay posts to.
	Client *messaging.Client

	// Account is the user name or full user ID to log in as.
	Account string

	// Password is used for password logins. The deliverer reads it but
	// does not close it.
	Password *secret.Buffer

	// RoomID is the notification room.
	RoomID ref.RoomID

	// Credentials is the starting session, usually from
	// CredentialsFromState.
	Credentials Credentials

	// Store receives the session produced by each password login.
	Store CredentialStore

	// Logger is used for structured logging. If nil, slog.Default() is
	// used.
	Logger *slog.Logger
}

// Deliverer sends reports to the notification room. Not safe for
// concurrent use.
type Deliverer struct {
	client      *messaging.Client
	account     string
	password    *secret.Buffer
	roomID      ref.RoomID
	credentials Credentials
	store       CredentialStore
	logger      *slog.Logger

	// joined is set after a successful join and cleared when the room
	// refuses a message, so the join is only repeated when it may be
	// needed.
	joined bool
}

// New validates config and returns a Deliverer.
func New(config Config) (*Deliverer, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("delivery: Client is required")
	}
	if config.RoomID.IsZero() {
		return nil, fmt.Errorf("delivery: RoomID is required")
	}
	if config.Store == nil {
		return nil, fmt.Errorf("delivery: Store is required")
	}
	if config.Credentials.Kind == NoCredentials && (config.Account == "" || config.Password == nil) {
		return nil, fmt.Errorf("delivery: Account and Password are required without cached credentials")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Deliverer{
		client:      config.Client,
		account:     config.Account,
		password:    config.Password,
		roomID:      config.RoomID,
		credentials: config.Credentials,
		store:       config.Store,
		logger:      logger.With("homeserver", config.Client.HomeserverURL(), "room_id", config.RoomID),
	}, nil
}

// CredentialKind reports where the next session will come from.
func (d *Deliverer) CredentialKind() CredentialKind {
	return d.credentials.Kind
}

// Login returns a session for the relay account. Cached credentials
// are used without a request. Otherwise a password login is made and
// its credentials are stored before Login returns; a store failure is
// returned unwrapped so the caller sees the statefile error.
//
// The caller must Close the session.
func (d *Deliverer) Login(ctx context.Context) (*messaging.DirectSession, error) {
	if d.credentials.Kind == CachedCredentials {
		session, err := d.client.SessionFromToken(d.credentials.UserID, d.credentials.DeviceID, d.credentials.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("delivery: %w: %w", ErrSend, err)
		}
		return session, nil
	}

	if d.password == nil {
		return nil, fmt.Errorf("delivery: %w: no password configured for %s", ErrAuthFailed, d.account)
	}
	session, err := d.client.Login(ctx, d.account, d.password)
	if err != nil {
		var matrixErr *messaging.MatrixError
		if errors.As(err, &matrixErr) && matrixErr.Unauthorized() {
			return nil, fmt.Errorf("delivery: %w: %w", ErrAuthFailed, err)
		}
		return nil, fmt.Errorf("delivery: %w: %w", ErrSend, err)
	}

	credentials := Credentials{
		Kind:        CachedCredentials,
		UserID:      session.UserID(),
		DeviceID:    session.DeviceID(),
		AccessToken: session.AccessToken(),
	}
	if err := d.store.StoreCredentials(statefile.Credentials{
		HomeserverURL: d.client.HomeserverURL(),
		UserID:        credentials.UserID,
		DeviceID:      credentials.DeviceID,
		AccessToken:   credentials.AccessToken,
	}); err != nil {
		session.Close()
		return nil, err
	}
	d.credentials = credentials
	d.joined = false
	return session, nil
}

// EnsureJoined joins the notification room unless this deliverer has
// already joined it. Joining a room the account is already in
// succeeds.
func (d *Deliverer) EnsureJoined(ctx context.Context, session *messaging.DirectSession) error {
	if d.joined {
		return nil
	}
	if _, err := session.JoinRoom(ctx, d.roomID); err != nil {
		return d.sessionError("joining notification room", err)
	}
	d.logger.Info("joined notification room", "user_id", session.UserID())
	d.joined = true
	return nil
}

// Send posts message as an HTML m.room.message. The transport retries
// rate limits and server errors; a failure after that wraps ErrSend.
func (d *Deliverer) Send(ctx context.Context, session *messaging.DirectSession, reportID int64, message eventreport.Message) error {
	content := messaging.NewHTMLMessage(message.Plain, message.HTML)
	transactionID := TransactionID(session.DeviceID(), d.roomID, reportID)
	eventID, err := session.SendMessageWithTransaction(ctx, d.roomID, transactionID, content)
	if err != nil {
		if messaging.IsMatrixError(err, messaging.ErrCodeForbidden) {
			d.joined = false
		}
		return d.sessionError(fmt.Sprintf("sending report %d", reportID), err)
	}
	d.logger.Debug("report sent", "report_id", reportID, "event_id", eventID)
	return nil
}

// Deliver logs in, joins and sends one report. The session is closed
// before Deliver returns, whatever the outcome.
func (d *Deliverer) Deliver(ctx context.Context, reportID int64, message eventreport.Message) error {
	session, err := d.Login(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	if err := d.EnsureJoined(ctx, session); err != nil {
		return err
	}
	return d.Send(ctx, session, reportID, message)
}

// sessionError wraps err with ErrSend. A token the homeserver no
// longer recognises is forgotten so the next delivery logs in again.
func (d *Deliverer) sessionError(action string, err error) error {
	if messaging.IsMatrixError(err, messaging.ErrCodeUnknownToken) {
		d.logger.Warn("access token rejected, will log in again",
			"user_id", d.credentials.UserID,
			"device_id", d.credentials.DeviceID,
		)
		d.credentials = Credentials{Kind: NoCredentials}
		d.joined = false
	}
	return fmt.Errorf("delivery: %w: %s: %w", ErrSend, action, err)
}
