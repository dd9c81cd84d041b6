// Package account defines the contract for the operator's messaging-platform
// account session. The wire protocol itself lives behind the Dialer/Client
// interfaces; this package ships the types, the session artifact handling,
// and a mock implementation for tests.
package account

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors the Client implementations must return so the conversation
// flow can distinguish sign-in outcomes.
var (
	// ErrSecondFactorRequired signals that sign-in needs the account's
	// second-factor secret.
	ErrSecondFactorRequired = errors.New("account: second factor required")
	// ErrInvalidCode signals that the verification code was rejected.
	ErrInvalidCode = errors.New("account: invalid verification code")
	// ErrNotFound signals that an account identifier could not be resolved.
	ErrNotFound = errors.New("account: not found")
)

// Group is a handle to a remote group created through a Client.
type Group struct {
	ID    int64
	Title string
}

// Account is a handle to a resolved remote account.
type Account struct {
	ID       int64
	Username string
}

// AdminRights is the administrative rights set granted to an account in a
// group. GrantAdmins is the broader capability: holders may promote others.
type AdminRights struct {
	ChangeInfo     bool
	PostMessages   bool
	EditMessages   bool
	DeleteMessages bool
	BanUsers       bool
	InviteUsers    bool
	PinMessages    bool
	GrantAdmins    bool
}

// StandardRights returns the rights set granted to every auxiliary account.
// grantAdmins selects the broader variant that may promote further admins.
func StandardRights(grantAdmins bool) AdminRights {
	return AdminRights{
		ChangeInfo:     true,
		PostMessages:   true,
		EditMessages:   true,
		DeleteMessages: true,
		BanUsers:       true,
		InviteUsers:    true,
		PinMessages:    true,
		GrantAdmins:    grantAdmins,
	}
}

// Client is one authenticated connection to the messaging platform on behalf
// of the operator's personal account. A Client is bound to a single phone
// number at dial time and, once signed in, is exclusively owned by the batch
// worker processing it. Every call is attempted exactly once; retry policy
// is the caller's concern, and this system deliberately has none.
type Client interface {
	// SendCode asks the platform to deliver a verification code to the
	// client's phone number.
	SendCode(ctx context.Context) error

	// SignIn completes authentication with the out-of-band code. Returns
	// ErrSecondFactorRequired or ErrInvalidCode as appropriate.
	SignIn(ctx context.Context, code string) error

	// SignInSecondFactor completes authentication with the second-factor
	// secret after SignIn returned ErrSecondFactorRequired.
	SignInSecondFactor(ctx context.Context, secret string) error

	// CreateGroup creates one group and returns its handle.
	CreateGroup(ctx context.Context, title, about string) (Group, error)

	// ResolveAccount resolves a username to an account handle. Returns
	// ErrNotFound when the identifier does not exist.
	ResolveAccount(ctx context.Context, username string) (Account, error)

	// Invite adds the account to the group.
	Invite(ctx context.Context, group Group, acct Account) error

	// SetAdminRights grants the account the given rights set in the group.
	SetAdminRights(ctx context.Context, group Group, acct Account, rights AdminRights) error

	// SetRestricted toggles a temporary restricted membership state. Setting
	// then immediately clearing it expels the account without a lasting ban.
	SetRestricted(ctx context.Context, group Group, acct Account, restricted bool) error

	// ForceRemove kicks the account from the group outright.
	ForceRemove(ctx context.Context, group Group, acct Account) error

	// LeaveGroup makes the operator's own account leave the group.
	LeaveGroup(ctx context.Context, group Group) error

	// Disconnect releases the connection. Safe to call once per client.
	Disconnect() error
}

// Dialer opens a Client bound to a phone number. The session identifier on
// disk is derived from the phone, so redialing the same phone reuses the
// same artifact.
type Dialer interface {
	Dial(ctx context.Context, phone string) (Client, error)
}

// NoopDialer returns an error on Dial. It stands in when no platform client
// is wired into the build, so the daemon still starts and reports a clear
// diagnostic instead of crashing mid-conversation.
type NoopDialer struct{}

// Dial always fails.
func (NoopDialer) Dial(ctx context.Context, phone string) (Client, error) {
	return nil, fmt.Errorf("account: no platform client configured")
}
