package protocol

// This package implements the wire-level pieces of the protocol Beacon
// uses to talk to an event-store server: command signing, the
// authentication state machine, and response parsing.
//
// Commands are single lines of UTF-8 text. Over a persistent connection
// they are newline terminated; over HTTP they are sent as a text/plain
// POST body.
//
// === Authentication
//
// Stateless (HTTP) transports sign every command independently via
// headers:
//
//   ```
//     X-Auth-User: <userID>
//     X-Auth-Signature: <hex HMAC-SHA256 of the command body>
//   ```
//
// Persistent transports decorate the command text itself. In order of
// precedence:
//
//   ```
//     <command> TOKEN <token>      session token cached from AUTH
//     <signature>:<command>        connection-scoped, post-AUTH
//     <userID>:<signature>:<command>  inline credentials
//     <command>                    no credentials at all
//   ```
//
// A session token is obtained with the AUTH exchange:
//
//   ```
//     > AUTH <userID>:<hex HMAC-SHA256 of userID>
//     < OK TOKEN <token>
//   ```
//
// === Response bodies
//
// The server answers in one of four encodings, all of which parse into
// the same ordered Record shape:
//
// - A streaming frame sequence: one JSON object per line, tagged by a
//   "type" key.
//
//   ```
//     {"type":"schema","columns":["id","value"]}
//     {"type":"row","values":[1,"foo"]}
//     {"type":"batch","rows":[[2,"bar"],[3,"baz"]]}
//     {"type":"end"}
//   ```
//
//   A schema frame names the columns for positional rows. An end frame
//   terminates the sequence; anything after it is ignored.
//
// - A single JSON document (object or array).
//
// - A pipe-delimited table, optionally with an upper-case header row:
//
//   ```
//     ID|VALUE
//     1|foo
//     2|bar
//   ```
//
// - Raw lines, one record per line.
//
// Bodies may lead with a status line ("OK", "200 OK", or any line
// starting with a three-digit code); it is stripped before the body is
// classified.
