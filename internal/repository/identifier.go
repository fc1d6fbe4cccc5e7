package repository

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"time"
)

// IDWidth is the number of digits in a sequential user identifier.
const IDWidth = 12

// FirstID is assigned when the store holds no sequential identifier yet.
const FirstID = "000000000001"

var sequentialID = regexp.MustCompile(`^\d{12}$`)

// IsSequentialID reports whether id has the 12-digit numeric shape.
func IsSequentialID(id string) bool { return sequentialID.MatchString(id) }

// NextID derives the identifier for a new record: the greatest existing
// 12-digit id plus one, zero padded.  When the lookup fails the identifier
// falls back to the current unix time in milliseconds followed by five random
// digits so that registration still makes progress; the store's unique index
// on id turns an unlucky collision into ErrIDConflict.
func NextID(ctx context.Context, src IDSource) string {
	return nextID(ctx, src, time.Now)
}

func nextID(ctx context.Context, src IDSource, now func() time.Time) string {
	maxID, err := src.MaxSequentialID(ctx)
	if err != nil {
		return fallbackID(now())
	}
	if maxID == "" {
		return FirstID
	}
	n, err := strconv.ParseUint(maxID, 10, 64)
	if err != nil || !IsSequentialID(maxID) {
		return fallbackID(now())
	}
	return fmt.Sprintf("%0*d", IDWidth, n+1)
}

func fallbackID(t time.Time) string {
	suffix := 0
	if n, err := rand.Int(rand.Reader, big.NewInt(100000)); err == nil {
		suffix = int(n.Int64())
	}
	return fmt.Sprintf("%d%05d", t.UnixMilli(), suffix)
}
