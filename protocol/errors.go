package protocol

import "errors"

var (
	// ErrConnection covers network failures, timeouts and protocol-level
	// surprises. It never represents a semantic answer from the server.
	ErrConnection = errors.New("connection failed")

	// ErrAuthentication covers missing or invalid credentials and failed
	// AUTH exchanges.
	ErrAuthentication = errors.New("authentication failed")

	// ErrAuthorization means the server understood the command but the
	// authenticated user may not run it.
	ErrAuthorization = errors.New("permission denied")

	// ErrCommand means the server rejected the command as malformed.
	ErrCommand = errors.New("command rejected")

	ErrNotFound = errors.New("not found")

	ErrServer = errors.New("server error")

	// ErrParse means a body unambiguously claimed to be JSON by its
	// delimiters but did not decode.
	ErrParse = errors.New("malformed response body")

	// ErrCredentialsMissing is returned by Sign when no secret key is
	// configured.
	ErrCredentialsMissing = errors.New("no secret key configured")

	// ErrUnexpectedResponse means the server answered 200 with a body
	// that does not match the expected exchange. It is a protocol
	// error, not an authentication failure.
	ErrUnexpectedResponse = errors.New("unexpected server response")
)
