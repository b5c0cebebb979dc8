package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

const (
	orderNumberPrefix = "ORD-"
	orderNumberDigits = 6
	maxOrderNumber    = 999999

	// orderNumberLockKey identifies the advisory lock that serialises numbering ("ORD#").
	orderNumberLockKey int64 = 0x4f524423
)

var (
	ErrMalformedOrderNumber  = errors.New("malformed order number")
	ErrOrderNumbersExhausted = errors.New("order numbers exhausted")
)

// NextOrderNumber returns the number following lastIssued. An empty lastIssued
// starts the sequence at ORD-000001.
func NextOrderNumber(lastIssued string) (string, error) {
	if lastIssued == "" {
		return formatOrderNumber(1), nil
	}
	digits, ok := strings.CutPrefix(lastIssued, orderNumberPrefix)
	if !ok || len(digits) != orderNumberDigits {
		return "", fmt.Errorf("%w: %q", ErrMalformedOrderNumber, lastIssued)
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 || strings.ContainsAny(digits, "+-") {
		return "", fmt.Errorf("%w: %q", ErrMalformedOrderNumber, lastIssued)
	}
	if n >= maxOrderNumber {
		return "", ErrOrderNumbersExhausted
	}
	return formatOrderNumber(n + 1), nil
}

func formatOrderNumber(n int) string {
	return fmt.Sprintf("%s%0*d", orderNumberPrefix, orderNumberDigits, n)
}

// SequenceStore defines the DB methods the sequencer needs.
// Satisfied by *database.Queries bound to the order transaction.
type SequenceStore interface {
	LockOrderNumbers(ctx context.Context, key int64) error
	GetLastOrderNumber(ctx context.Context) (string, error)
}

// Sequencer issues order numbers inside the caller's transaction. The advisory lock
// is held until that transaction ends, so concurrent creators queue behind it.
type Sequencer struct {
	LockKey int64
}

func NewSequencer() Sequencer {
	return Sequencer{LockKey: orderNumberLockKey}
}

func (s Sequencer) Next(ctx context.Context, store SequenceStore) (string, error) {
	if err := store.LockOrderNumbers(ctx, s.LockKey); err != nil {
		return "", fmt.Errorf("lock order numbers: %w", err)
	}
	last, err := store.GetLastOrderNumber(ctx)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("get last order number: %w", err)
		}
		last = ""
	}
	return NextOrderNumber(last)
}
