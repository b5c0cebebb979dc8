package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestErrorIs_MatchesKindSentinel(t *testing.T) {
	err := fmt.Errorf("create branch: %w", Conflict("device id already registered"))

	if !errors.Is(err, ErrConflict) {
		t.Fatal("expected errors.Is(err, ErrConflict)")
	}
	if errors.Is(err, ErrValidation) {
		t.Fatal("conflict must not match ErrValidation")
	}
	if KindOf(err) != KindConflict {
		t.Fatalf("kind: got %s, want %s", KindOf(err), KindConflict)
	}
}

func TestField_CarriesFieldMessage(t *testing.T) {
	err := Field("status", "invalid status")
	fields := FieldsOf(err)
	if fields["status"] != "invalid status" {
		t.Fatalf("fields: got %v", fields)
	}
}

func TestFromStore(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"no rows", pgx.ErrNoRows, KindNotFound},
		{"deadline", context.DeadlineExceeded, KindTransient},
		{"connection exception", &pgconn.PgError{Code: "08006"}, KindTransient},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, KindTransient},
		{"unique violation", &pgconn.PgError{Code: "23505"}, KindInternal},
		{"plain", errors.New("boom"), KindInternal},
		{"already classified", Field("name", "required"), KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromStore(tt.err, "op", "thing not found")
			if KindOf(got) != tt.want {
				t.Fatalf("kind: got %s, want %s", KindOf(got), tt.want)
			}
		})
	}
}

func TestFromStore_Nil(t *testing.T) {
	if FromStore(nil, "op", "x") != nil {
		t.Fatal("expected nil")
	}
}

func TestConstraintHelpers(t *testing.T) {
	uniq := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "branches_device_id_key"})
	if !IsUniqueViolation(uniq, "branches_device_id_key") {
		t.Fatal("expected unique violation on branches_device_id_key")
	}
	if IsUniqueViolation(uniq, "orders_order_number_key") {
		t.Fatal("constraint name should be compared")
	}
	if !IsUniqueViolation(uniq, "") {
		t.Fatal("empty constraint should match any")
	}
	if !IsForeignKeyViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatal("expected foreign key violation")
	}
}
