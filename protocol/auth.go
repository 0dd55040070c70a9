package protocol

import (
	"fmt"
	"strings"
)

// AuthMode identifies how the next command will carry credentials.
type AuthMode int

const (
	// ModeUnauthenticated sends commands unmodified.
	ModeUnauthenticated AuthMode = iota

	// ModeInline prefixes every command with the user ID and a
	// per-command signature.
	ModeInline

	// ModeConnectionScoped prefixes every command with a per-command
	// signature only. It is active after a successful AUTH on the
	// current connection when no token was issued.
	ModeConnectionScoped

	// ModeToken appends the cached session token to every command.
	ModeToken
)

// AuthState tracks the credentials and session state of one client.
//
// It is owned by a single client instance and is not safe to share
// across transports. At most one mode is active at a time, chosen by
// precedence: token > connection-scoped > inline > unauthenticated.
type AuthState struct {
	userID    string
	secretKey string

	token             string
	authenticatedUser string
	connectionScoped  bool
}

func NewAuthState(userID, secretKey string) *AuthState {
	return &AuthState{
		userID:    userID,
		secretKey: secretKey,
	}
}

// Mode returns the currently active authentication mode.
func (a *AuthState) Mode() AuthMode {
	switch {
	case a.token != "":
		return ModeToken
	case a.connectionScoped && a.secretKey != "":
		return ModeConnectionScoped
	case a.userID != "" && a.secretKey != "":
		return ModeInline
	default:
		return ModeUnauthenticated
	}
}

func (a *AuthState) UserID() string {
	return a.userID
}

// AuthenticatedUser returns the user recorded by the last successful
// AUTH exchange, or "" if none has completed.
func (a *AuthState) AuthenticatedUser() string {
	return a.authenticatedUser
}

// SetSessionToken caches the token issued by a successful AUTH exchange
// and records the authenticated user. Subsequent commands use token
// mode.
func (a *AuthState) SetSessionToken(token, user string) {
	a.token = token
	a.authenticatedUser = user
}

// SetConnectionScoped marks the current connection as authenticated
// without a token. It has no effect once a token is cached.
func (a *AuthState) SetConnectionScoped() {
	a.connectionScoped = true
}

// Reset drops all session state. Construction-time credentials are
// kept, so a client can authenticate again on a fresh connection.
func (a *AuthState) Reset() {
	a.token = ""
	a.authenticatedUser = ""
	a.connectionScoped = false
}

// FormatCommand decorates a command for a persistent connection
// according to the active mode. The command is trimmed first.
func (a *AuthState) FormatCommand(command string) (string, error) {
	command = strings.TrimSpace(command)

	switch a.Mode() {
	case ModeToken:
		return fmt.Sprintf("%s TOKEN %s", command, a.token), nil

	case ModeConnectionScoped:
		sig, err := Sign(a.secretKey, command)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s:%s", sig, command), nil

	case ModeInline:
		sig, err := Sign(a.secretKey, command)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s:%s:%s", a.userID, sig, command), nil

	default:
		return command, nil
	}
}

// Headers returns the auth headers for one stateless request. Stateless
// transports have no session, so every command is signed independently
// regardless of the session state. Without credentials the map is
// empty.
func (a *AuthState) Headers(command string) (map[string]string, error) {
	if a.userID == "" || a.secretKey == "" {
		return map[string]string{}, nil
	}

	sig, err := Sign(a.secretKey, command)
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"X-Auth-User":      a.userID,
		"X-Auth-Signature": sig,
	}, nil
}

// AuthCommand builds the AUTH exchange request for the configured
// credentials.
func (a *AuthState) AuthCommand() (string, error) {
	if a.userID == "" {
		return "", ErrCredentialsMissing
	}

	sig, err := Sign(a.secretKey, a.userID)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("AUTH %s:%s", a.userID, sig), nil
}
