package engine

import (
	"bytes"
	"encoding/base64"
	"errors"
)

// SASLClient is the hand-off point for SASL authentication during
// registration, per SPEC_FULL.md §12's supplemental SASL scaffolding:
// kept from the teacher as an extension point even though spec.md lists
// SASL as a Non-goal. Options.SASL is nil by default, in which case the
// engine never speaks AUTHENTICATE and registration proceeds exactly as
// it would without this field existing. Grounded on the teacher's
// irc/states.go SASLClient interface.
type SASLClient interface {
	// Handshake names the SASL mechanism to request, e.g. "PLAIN".
	Handshake() (mech string)
	// Respond computes the response to one server challenge.
	Respond(challenge string) (res string, err error)
}

// SASLPlain implements SASLClient for the PLAIN mechanism: the only
// mechanism the teacher ships, kept verbatim in shape (not auto-wired to
// any cap request beyond what CAP LS naturally advertises, per
// SPEC_FULL.md §12 item 5).
type SASLPlain struct {
	Username string
	Password string
}

func (auth *SASLPlain) Handshake() (mech string) {
	return "PLAIN"
}

func (auth *SASLPlain) Respond(challenge string) (res string, err error) {
	if challenge != "+" {
		return "", errors.New("engine: unexpected SASL challenge")
	}
	user := []byte(auth.Username)
	pass := []byte(auth.Password)
	payload := bytes.Join([][]byte{user, user, pass}, []byte{0})
	return base64.StdEncoding.EncodeToString(payload), nil
}
