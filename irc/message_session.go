package irc

// Pass is the "PASS <password>" registration message.
type Pass struct {
	rawMessage
	Password string
}

// Nick is "NICK <nickname>", sent by the client to set or change its
// nickname, and received from the server (with Prefix set) to announce
// another user's (or our own) nickname change.
type Nick struct {
	rawMessage
	Nickname string
}

// User is the "USER <user> <mode> <unused> :<realname>" registration
// message.
type User struct {
	rawMessage
	User     string
	Mode     string
	Realname string
}

// Oper is the "OPER <name> <password>" operator-authentication message.
type Oper struct {
	rawMessage
	Name     string
	Password string
}

// Quit is "QUIT [:<reason>]", sent by the client to disconnect and
// received from the server (with Prefix set) announcing another user's
// disconnection.
type Quit struct {
	rawMessage
	Reason string
}

// Authenticate is "AUTHENTICATE <payload>", the SASL handshake message
// exchanged in both directions once CAP ACK has enabled "sasl": the
// client sends its mechanism name or a base64 response, the server sends
// challenges, and "+" is the empty-challenge/continue marker (spec.md §12
// SASL scaffolding, grounded on the teacher's irc/states.go AUTHENTICATE
// handling).
type Authenticate struct {
	rawMessage
	Payload string
}
