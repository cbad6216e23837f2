package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Identifier prefixes, one per resource kind.
const (
	TokenIDPrefix         = "tok_"
	AuthorizationIDPrefix = "auth_"
	RefundIDPrefix        = "re_"
	EndpointIDPrefix      = "we_"
	EventIDPrefix         = "evt_"
)

// OpaqueIDLength is the random hex suffix length for all resource ids.
const OpaqueIDLength = 24

// NewID builds a prefixed opaque identifier like tok_a1b2c3... Ids carry
// no embedded information; everything about the resource lives server-side.
func NewID(prefix string, length int) string {
	buf := make([]byte, (length+1)/2)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the process cannot mint ids at all
		panic(fmt.Sprintf("domain: read random bytes: %v", err))
	}
	return prefix + hex.EncodeToString(buf)[:length]
}
