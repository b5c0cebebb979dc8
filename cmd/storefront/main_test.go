package main

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/branchline/api/internal/client"
)

func TestParseLine(t *testing.T) {
	wrapID := uuid.New()
	menu := map[uuid.UUID]client.MenuItem{
		wrapID: {ID: wrapID, Name: "Falafel Wrap", Price: decimal.RequireFromString("17.50")},
	}

	tests := []struct {
		name     string
		arg      string
		wantErr  bool
		wantQty  int
		wantNote string
	}{
		{"quantity only", wrapID.String() + ":2", false, 2, ""},
		{"with note", wrapID.String() + ":1:no onions", false, 1, "no onions"},
		{"note keeps colons", wrapID.String() + ":3:sauce: garlic", false, 3, "sauce: garlic"},
		{"missing quantity", wrapID.String(), true, 0, ""},
		{"zero quantity", wrapID.String() + ":0", true, 0, ""},
		{"negative quantity", wrapID.String() + ":-2", true, 0, ""},
		{"non-numeric quantity", wrapID.String() + ":two", true, 0, ""},
		{"bad item id", "wrap:1", true, 0, ""},
		{"item not on menu", uuid.NewString() + ":1", true, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, err := parseLine(tt.arg, menu)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", line)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if line.MenuItemID != wrapID || line.Name != "Falafel Wrap" {
				t.Errorf("item: got %+v", line)
			}
			if line.Quantity != tt.wantQty || line.Note != tt.wantNote {
				t.Errorf("got qty %d note %q, want %d %q", line.Quantity, line.Note, tt.wantQty, tt.wantNote)
			}
			if !line.Price.Equal(decimal.RequireFromString("17.50")) {
				t.Errorf("price: got %s, want menu price 17.50", line.Price)
			}
		})
	}
}

func TestParsePoint(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon string
		wantNil  bool
		wantErr  bool
	}{
		{"unset", "", "", true, false},
		{"both set", "24.77", "46.74", false, false},
		{"only lat", "24.77", "", true, true},
		{"only lon", "", "46.74", true, true},
		{"bad lat", "north", "46.74", true, true},
		{"bad lon", "24.77", "east", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := parsePoint(tt.lat, tt.lon)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if (p == nil) != tt.wantNil {
				t.Fatalf("point = %v, wantNil %v", p, tt.wantNil)
			}
			if p != nil && (p.Lat != 24.77 || p.Lon != 46.74) {
				t.Errorf("point: got %+v", p)
			}
		})
	}
}
