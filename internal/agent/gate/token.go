package gate

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"cloudops-agent/internal/models"
)

var (
	ErrTokenMissing   = errors.New("confirmation token is required")
	ErrTokenMalformed = errors.New("confirmation token is malformed")
	ErrTokenExpired   = errors.New("confirmation token has expired")
	ErrTokenMismatch  = errors.New("confirmation token does not match the proposed operation")
)

const DefaultTokenTTL = 10 * time.Minute

// Signer binds a proposal to its operation and parameters. A token has the
// form <nonce>.<unix expiry>.<hex hmac-sha256>.
type Signer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewSigner(key string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Signer{key: []byte(key), ttl: ttl, now: time.Now}
}

// Sign issues a token for operation with params.
func (s *Signer) Sign(operation string, params models.EntitySet) string {
	nonce := uuid.NewString()
	expiry := strconv.FormatInt(s.now().Add(s.ttl).Unix(), 10)
	return nonce + "." + expiry + "." + s.mac(nonce, expiry, operation, params)
}

// Verify checks that token was issued by this signer for exactly operation
// and params and has not expired.
func (s *Signer) Verify(token, operation string, params models.EntitySet) error {
	if token == "" {
		return ErrTokenMissing
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return ErrTokenMalformed
	}
	nonce, expiry, sig := parts[0], parts[1], parts[2]

	exp, err := strconv.ParseInt(expiry, 10, 64)
	if err != nil {
		return ErrTokenMalformed
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return ErrTokenMalformed
	}

	want, _ := hex.DecodeString(s.mac(nonce, expiry, operation, params))
	if !hmac.Equal(got, want) {
		return ErrTokenMismatch
	}
	if s.now().Unix() > exp {
		return ErrTokenExpired
	}
	return nil
}

func (s *Signer) mac(nonce, expiry, operation string, params models.EntitySet) string {
	h := hmac.New(sha256.New, s.key)
	h.Write([]byte(nonce))
	h.Write([]byte{'\n'})
	h.Write([]byte(expiry))
	h.Write([]byte{'\n'})
	h.Write([]byte(operation))
	h.Write([]byte{'\n'})
	h.Write([]byte(canonical(params)))
	return hex.EncodeToString(h.Sum(nil))
}

// canonical renders params with sorted keys and text values, so a size echoed
// back as 20, 20.0 or "20" signs the same.
func canonical(params models.EntitySet) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if params.Has(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params.String(k))
		b.WriteByte('\n')
	}
	return b.String()
}
