package callback

import (
	"crypto/hmac"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/josh-kwaku/settlement/internal/domain"
)

type Verifier struct {
	secret  string
	maxSkew time.Duration
	now     func() time.Time
}

// NewVerifier returns a verifier that rejects callbacks whose timestamp is
// more than maxSkew away from the local clock. A zero maxSkew disables the
// check.
func NewVerifier(secret string, maxSkew time.Duration) *Verifier {
	return &Verifier{secret: secret, maxSkew: maxSkew, now: time.Now}
}

func (v *Verifier) Verify(orderCode, status, timestamp, signature string) error {
	if timestamp == "" || signature == "" {
		return fmt.Errorf("Verify: missing headers: %w", domain.ErrInvalidSignature)
	}

	ts, err := strconv.ParseInt(strings.TrimSpace(timestamp), 10, 64)
	if err != nil {
		return fmt.Errorf("Verify: timestamp %q: %w", timestamp, domain.ErrInvalidSignature)
	}

	expected := Sign(v.secret, Payload(orderCode, status, ts))
	got := strings.ToLower(strings.TrimSpace(signature))
	if !hmac.Equal([]byte(expected), []byte(got)) {
		return fmt.Errorf("Verify: %w", domain.ErrInvalidSignature)
	}

	if v.maxSkew > 0 {
		skew := v.now().Sub(time.Unix(ts, 0))
		if skew < 0 {
			skew = -skew
		}
		if skew > v.maxSkew {
			return fmt.Errorf("Verify: skew %s: %w", skew, domain.ErrStaleCallback)
		}
	}
	return nil
}
