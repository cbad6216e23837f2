// Package webhook delivers queued events to merchant endpoints with
// signed payloads and scheduled retries.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureTolerance bounds how old a signed timestamp may be before
// verification rejects it, limiting replay of captured deliveries.
const SignatureTolerance = 5 * time.Minute

// Signer computes and verifies the signature scheme carried in the
// X-Webhook-Signature header: "t=<unix>,v1=<hmac>" where the MAC covers
// "<unix>.<payload>" under the endpoint secret.
type Signer struct{}

func NewSigner() *Signer {
	return &Signer{}
}

// Sign builds the signature header value for a payload at ts.
func (s *Signer) Sign(secret string, payload []byte, ts time.Time) string {
	unix := ts.Unix()
	return fmt.Sprintf("t=%d,v1=%s", unix, s.mac(secret, payload, unix))
}

// Verify checks a received signature header against the payload. It is
// what merchant-side code runs; shipping it keeps both halves of the
// scheme in one place.
func (s *Signer) Verify(secret string, payload []byte, header string, now time.Time) error {
	ts, sig, err := parseHeader(header)
	if err != nil {
		return err
	}

	age := now.Sub(time.Unix(ts, 0))
	if age > SignatureTolerance || age < -SignatureTolerance {
		return fmt.Errorf("signature timestamp outside tolerance")
	}

	expected := s.mac(secret, payload, ts)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

func (s *Signer) mac(secret string, payload []byte, unix int64) string {
	m := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(m, "%d.", unix)
	m.Write(payload)
	return hex.EncodeToString(m.Sum(nil))
}

func parseHeader(header string) (int64, string, error) {
	var ts int64
	var sig string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return 0, "", fmt.Errorf("malformed signature header")
		}
		switch k {
		case "t":
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return 0, "", fmt.Errorf("malformed signature timestamp")
			}
			ts = parsed
		case "v1":
			sig = v
		}
	}
	if ts == 0 || sig == "" {
		return 0, "", fmt.Errorf("signature header missing t or v1")
	}
	return ts, sig, nil
}
