package domain

import "testing"

func TestRange_StringAndParse(t *testing.T) {
	r := Range{From: 100, To: 119}
	s := r.String()
	if s != "100-119" {
		t.Errorf("expected 100-119, got %s", s)
	}

	parsed, err := ParseRange(s)
	if err != nil {
		t.Fatalf("ParseRange failed: %v", err)
	}
	if parsed != r {
		t.Errorf("expected %+v, got %+v", r, parsed)
	}
}

func TestRange_ParseInvalid(t *testing.T) {
	if _, err := ParseRange("not-a-range"); err == nil {
		t.Error("expected error for malformed range")
	}
	if _, err := ParseRange("119-100"); err == nil {
		t.Error("expected error when to < from")
	}
}

func TestRange_Len(t *testing.T) {
	r := Range{From: 100, To: 119}
	if r.Len() != 20 {
		t.Errorf("expected len 20, got %d", r.Len())
	}
}

func TestBuildRanges(t *testing.T) {
	ranges := BuildRanges(0, 49, 20)
	want := []Range{{0, 19}, {20, 39}, {40, 49}}
	if len(ranges) != len(want) {
		t.Fatalf("expected %d ranges, got %d", len(want), len(ranges))
	}
	for i, r := range ranges {
		if r != want[i] {
			t.Errorf("range %d: expected %+v, got %+v", i, want[i], r)
		}
	}
}

func TestBuildRanges_StartAfterTarget(t *testing.T) {
	if ranges := BuildRanges(50, 10, 20); ranges != nil {
		t.Errorf("expected nil, got %+v", ranges)
	}
}
