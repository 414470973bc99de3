package broker

import "fmt"

// CallbackAuthenticator accepts callbacks only from the single oracle identity
// fixed at construction time. Every resolution passes through this gate before
// any state is touched.
type CallbackAuthenticator struct {
	oracleIdentity string
}

func NewCallbackAuthenticator(oracleIdentity string) *CallbackAuthenticator {
	return &CallbackAuthenticator{oracleIdentity: oracleIdentity}
}

func (a *CallbackAuthenticator) Authenticate(caller string) error {
	if caller != a.oracleIdentity {
		return fmt.Errorf("%w: expected callback from %q, got %q", ErrUnauthorized, a.oracleIdentity, caller)
	}
	return nil
}

func (a *CallbackAuthenticator) OracleIdentity() string {
	return a.oracleIdentity
}

// AdminGate distinguishes the one administrator identity allowed to change
// gas budgets from everyone else.
type AdminGate struct {
	adminIdentity string
}

func NewAdminGate(adminIdentity string) *AdminGate {
	return &AdminGate{adminIdentity: adminIdentity}
}

func (g *AdminGate) Authorize(caller string) error {
	if caller != g.adminIdentity {
		return fmt.Errorf("%w: caller %q is not the administrator", ErrUnauthorized, caller)
	}
	return nil
}
