// Package verification issues and checks the one-time email codes that gate
// local registration.
package verification

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// DefaultTTL is how long an issued code stays usable.
const DefaultTTL = 10 * time.Minute

// Registry maps an email to its current one-time code.
//
// Issue replaces any earlier code for the email.  Verify reports true only for
// an exact match against an unexpired code and consumes the code on success;
// every other outcome leaves the stored entry untouched.
type Registry interface {
	Issue(ctx context.Context, email string) (string, error)
	Verify(ctx context.Context, email, code string) (bool, error)
}

var codeRange = big.NewInt(900000)

// NewCode returns a six digit code uniformly distributed over 100000..999999.
func NewCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeRange)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
