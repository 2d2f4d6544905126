package pagination

import "testing"

func TestParams_Offset(t *testing.T) {
	tests := []struct {
		name   string
		p      Params
		offset int
		limit  int
	}{
		{"first page", Params{Page: 1, ItemsPerPage: 25}, 0, 25},
		{"third page", Params{Page: 3, ItemsPerPage: 10}, 20, 10},
		{"zero values use defaults", Params{}, 0, DefaultItemsPerPage},
		{"negative page clamps", Params{Page: -4, ItemsPerPage: 5}, 0, 5},
		{"oversized page size clamps", Params{Page: 2, ItemsPerPage: 5000}, MaxItemsPerPage, MaxItemsPerPage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.Offset(); got != tt.offset {
				t.Errorf("expected offset %d, got %d", tt.offset, got)
			}
			if got := tt.p.Limit(); got != tt.limit {
				t.Errorf("expected limit %d, got %d", tt.limit, got)
			}
		})
	}
}

func TestParams_TotalPages(t *testing.T) {
	p := Params{Page: 1, ItemsPerPage: 25}
	cases := map[int]int{0: 1, 1: 1, 25: 1, 26: 2, 100: 4, 101: 5}
	for total, want := range cases {
		if got := p.TotalPages(total); got != want {
			t.Errorf("TotalPages(%d): expected %d, got %d", total, want, got)
		}
	}
}

func TestParams_HasNextHasPrevious(t *testing.T) {
	p := Params{Page: 2, ItemsPerPage: 10}
	if !p.HasNext(25) {
		t.Error("expected next page with 25 items")
	}
	if p.HasNext(20) {
		t.Error("expected no next page with 20 items")
	}
	if !p.HasPrevious() {
		t.Error("expected previous page on page 2")
	}
	if (Params{Page: 1, ItemsPerPage: 10}).HasPrevious() {
		t.Error("expected no previous page on page 1")
	}
}
