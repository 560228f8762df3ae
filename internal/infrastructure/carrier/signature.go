package carrier

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/davidleathers/number-provisioning-backend/internal/domain/errors"
)

// Verifier checks the authenticity of an inbound webhook delivery. It is
// deliberately decoupled from any carrier SDK so handlers can be tested
// against a fake.
type Verifier interface {
	// Verify checks the signature and timestamp headers against the raw,
	// unparsed body. A non-nil error means the delivery must be rejected
	// without side effects and without acknowledgment.
	Verify(rawBody []byte, signatureHeader, timestampHeader string) error
}

// HMACVerifier verifies sha256 HMAC signatures computed over
// "<timestamp>.<body>" with a shared secret, the scheme both carrier
// portals are configured to use for this service.
type HMACVerifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

func NewHMACVerifier(secret string, tolerance time.Duration) *HMACVerifier {
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	return &HMACVerifier{
		secret:    []byte(secret),
		tolerance: tolerance,
		now:       time.Now,
	}
}

func (v *HMACVerifier) Verify(rawBody []byte, signatureHeader, timestampHeader string) error {
	if signatureHeader == "" {
		return errors.NewIntegrityError("missing signature header")
	}
	if timestampHeader == "" {
		return errors.NewIntegrityError("missing timestamp header")
	}

	ts, err := strconv.ParseInt(timestampHeader, 10, 64)
	if err != nil {
		return errors.NewIntegrityError("malformed timestamp header").WithCause(err)
	}

	eventTime := time.Unix(ts, 0)
	if drift := v.now().Sub(eventTime); drift > v.tolerance || drift < -v.tolerance {
		return errors.NewIntegrityError("webhook timestamp outside tolerance window")
	}

	expected := computeSignature(v.secret, timestampHeader, rawBody)
	provided := strings.TrimPrefix(signatureHeader, "sha256=")
	if !hmac.Equal([]byte(expected), []byte(provided)) {
		return errors.NewIntegrityError("webhook signature mismatch")
	}
	return nil
}

func computeSignature(secret []byte, timestamp string, body []byte) string {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(timestamp))
	h.Write([]byte("."))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Sign produces the signature for a payload. Used by tests and by the
// local delivery replayer.
func Sign(secret, timestamp string, body []byte) string {
	return computeSignature([]byte(secret), timestamp, body)
}
