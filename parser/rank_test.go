package parser

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pricewatch-kr/danawa-scraper/models"
)

func product(name string, price *int) *models.Product {
	return &models.Product{Name: name, Price: price}
}

func intPtr(v int) *int { return &v }

func TestDedupeByNameFirstWins(t *testing.T) {
	first := product("X", intPtr(500))
	second := product("X", intPtr(100))
	other := product("Y", intPtr(300))

	merged := DedupeByName([]*models.Product{first, second, other})

	if len(merged) != 2 {
		t.Fatalf("merged = %d, want 2", len(merged))
	}
	if merged[0] != first {
		t.Fatalf("first occurrence of X should win, got price %v", merged[0].Price)
	}
	if merged[1] != other {
		t.Fatalf("stable order broken: %+v", merged)
	}
}

func TestDedupeByNameSkipsNil(t *testing.T) {
	merged := DedupeByName([]*models.Product{nil, product("X", nil), nil})
	if len(merged) != 1 || merged[0].Name != "X" {
		t.Fatalf("merged = %+v, want single X", merged)
	}
}

func TestSortByPriceNilLast(t *testing.T) {
	products := []*models.Product{
		product("unpriced", nil),
		product("mid", intPtr(500)),
		product("cheap", intPtr(100)),
	}

	SortByPrice(products)

	wantNames := []string{"cheap", "mid", "unpriced"}
	gotNames := make([]string, len(products))
	for i, p := range products {
		gotNames[i] = p.Name
	}
	if diff := cmp.Diff(wantNames, gotNames); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestSortByPriceNameTieBreak(t *testing.T) {
	products := []*models.Product{
		product("bravo", intPtr(100)),
		product("alpha", intPtr(100)),
		product("zulu", nil),
		product("yankee", nil),
	}

	SortByPrice(products)

	wantNames := []string{"alpha", "bravo", "yankee", "zulu"}
	gotNames := make([]string, len(products))
	for i, p := range products {
		gotNames[i] = p.Name
	}
	if diff := cmp.Diff(wantNames, gotNames); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}
