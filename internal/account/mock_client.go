package account

import (
	"context"
	"fmt"
	"sync"
)

// MockDialer implements Dialer for tests. It hands out a configured
// MockClient and records dialed phones.
type MockDialer struct {
	mu     sync.Mutex
	Client *MockClient
	Err    error
	dialed []string
}

// Dial returns the configured client or error.
func (d *MockDialer) Dial(ctx context.Context, phone string) (Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialed = append(d.dialed, phone)
	if d.Err != nil {
		return nil, d.Err
	}
	if d.Client == nil {
		d.Client = NewMockClient()
	}
	return d.Client, nil
}

// Dialed returns the phones passed to Dial, in order.
func (d *MockDialer) Dialed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.dialed))
	copy(out, d.dialed)
	return out
}

// RightsGrant records one SetAdminRights call.
type RightsGrant struct {
	Group   Group
	Account Account
	Rights  AdminRights
}

// RestrictCall records one SetRestricted call.
type RestrictCall struct {
	Group      Group
	Account    Account
	Restricted bool
}

// MockClient implements Client for testing. Error fields inject failures;
// recorded slices let tests assert on the exact call sequence. The zero
// value is not usable; construct with NewMockClient.
type MockClient struct {
	mu sync.Mutex

	// Failure injection.
	SendCodeErr     error
	SignInErr       error         // returned by SignIn (e.g. ErrSecondFactorRequired)
	SecondFactorErr error         // returned by SignInSecondFactor
	CreateGroupErrs map[int]error // keyed by 1-based CreateGroup call number
	ResolveErrs     map[string]error
	InviteErr       error
	RightsErr       error
	RestrictErr     error // returned when restricting (restricted=true)
	ForceRemoveErr  error
	LeaveErr        error

	// Call records.
	codeSent        bool
	signedIn        bool
	createCalls     int
	created         []Group
	invites         []Account
	rightsGrants    []RightsGrant
	restrictCalls   []RestrictCall
	forceRemoved    []Account
	left            []Group
	disconnectCount int

	nextID int64
}

// NewMockClient creates a MockClient.
func NewMockClient() *MockClient {
	return &MockClient{
		CreateGroupErrs: make(map[int]error),
		ResolveErrs:     make(map[string]error),
		nextID:          1000,
	}
}

// SendCode records the request or fails with SendCodeErr.
func (m *MockClient) SendCode(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendCodeErr != nil {
		return m.SendCodeErr
	}
	m.codeSent = true
	return nil
}

// SignIn succeeds unless SignInErr is set.
func (m *MockClient) SignIn(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SignInErr != nil {
		return m.SignInErr
	}
	m.signedIn = true
	return nil
}

// SignInSecondFactor succeeds unless SecondFactorErr is set.
func (m *MockClient) SignInSecondFactor(ctx context.Context, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SecondFactorErr != nil {
		return m.SecondFactorErr
	}
	m.signedIn = true
	return nil
}

// CreateGroup returns a fresh group handle, or the error configured for
// this call number.
func (m *MockClient) CreateGroup(ctx context.Context, title, about string) (Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if err := m.CreateGroupErrs[m.createCalls]; err != nil {
		return Group{}, err
	}
	m.nextID++
	g := Group{ID: m.nextID, Title: title}
	m.created = append(m.created, g)
	return g, nil
}

// ResolveAccount resolves any username not listed in ResolveErrs.
func (m *MockClient) ResolveAccount(ctx context.Context, username string) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ResolveErrs[username]; err != nil {
		return Account{}, err
	}
	m.nextID++
	return Account{ID: m.nextID, Username: username}, nil
}

// Invite records the invite or fails with InviteErr.
func (m *MockClient) Invite(ctx context.Context, group Group, acct Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InviteErr != nil {
		return m.InviteErr
	}
	m.invites = append(m.invites, acct)
	return nil
}

// SetAdminRights records the grant or fails with RightsErr.
func (m *MockClient) SetAdminRights(ctx context.Context, group Group, acct Account, rights AdminRights) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RightsErr != nil {
		return m.RightsErr
	}
	m.rightsGrants = append(m.rightsGrants, RightsGrant{Group: group, Account: acct, Rights: rights})
	return nil
}

// SetRestricted records the call. RestrictErr fails only the restricting
// half of the expel sequence, matching the failure mode tests care about.
func (m *MockClient) SetRestricted(ctx context.Context, group Group, acct Account, restricted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if restricted && m.RestrictErr != nil {
		return m.RestrictErr
	}
	m.restrictCalls = append(m.restrictCalls, RestrictCall{Group: group, Account: acct, Restricted: restricted})
	return nil
}

// ForceRemove records the kick or fails with ForceRemoveErr.
func (m *MockClient) ForceRemove(ctx context.Context, group Group, acct Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceRemoveErr != nil {
		return m.ForceRemoveErr
	}
	m.forceRemoved = append(m.forceRemoved, acct)
	return nil
}

// LeaveGroup records the leave or fails with LeaveErr.
func (m *MockClient) LeaveGroup(ctx context.Context, group Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LeaveErr != nil {
		return m.LeaveErr
	}
	m.left = append(m.left, group)
	return nil
}

// Disconnect counts invocations. It never fails.
func (m *MockClient) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnectCount++
	return nil
}

// --- Test helpers ---

// CodeSent reports whether SendCode succeeded at least once.
func (m *MockClient) CodeSent() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codeSent
}

// SignedIn reports whether any sign-in succeeded.
func (m *MockClient) SignedIn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signedIn
}

// Created returns the groups created so far.
func (m *MockClient) Created() []Group {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Group, len(m.created))
	copy(out, m.created)
	return out
}

// Invites returns the accounts invited so far.
func (m *MockClient) Invites() []Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Account, len(m.invites))
	copy(out, m.invites)
	return out
}

// RightsGrants returns the recorded SetAdminRights calls.
func (m *MockClient) RightsGrants() []RightsGrant {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RightsGrant, len(m.rightsGrants))
	copy(out, m.rightsGrants)
	return out
}

// RestrictCalls returns the recorded SetRestricted calls.
func (m *MockClient) RestrictCalls() []RestrictCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RestrictCall, len(m.restrictCalls))
	copy(out, m.restrictCalls)
	return out
}

// ForceRemoved returns the accounts kicked via ForceRemove.
func (m *MockClient) ForceRemoved() []Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Account, len(m.forceRemoved))
	copy(out, m.forceRemoved)
	return out
}

// Left returns the groups left so far.
func (m *MockClient) Left() []Group {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Group, len(m.left))
	copy(out, m.left)
	return out
}

// DisconnectCount returns how many times Disconnect was called.
func (m *MockClient) DisconnectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnectCount
}

// String aids failure messages in tests.
func (m *MockClient) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("mock client: %d created, %d left, %d disconnects",
		len(m.created), len(m.left), m.disconnectCount)
}
