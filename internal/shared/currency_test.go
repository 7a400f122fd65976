package shared_test

import (
	"strings"
	"testing"

	"github.com/ironstone-erp/ironstone-erp/internal/shared"
)

func TestFormatZAR(t *testing.T) {
	got := shared.FormatZAR(1234.5)
	if !strings.HasPrefix(got, "R") {
		t.Fatalf("expected rand symbol prefix, got %q", got)
	}
}

func TestClampDisplay(t *testing.T) {
	if got := shared.ClampDisplay(-50); got != 0 {
		t.Fatalf("negative amount should display as zero, got %v", got)
	}
	if got := shared.ClampDisplay(120.5); got != 120.5 {
		t.Fatalf("positive amount should pass through, got %v", got)
	}
}

func TestPagination(t *testing.T) {
	p := shared.NewPagination(3, 20, 45)
	if p.TotalPages != 3 {
		t.Fatalf("expected 3 pages, got %d", p.TotalPages)
	}
	if p.Offset() != 40 {
		t.Fatalf("expected offset 40, got %d", p.Offset())
	}

	// Defaults kick in for out-of-range inputs.
	d := shared.NewPagination(0, 0, 10)
	if d.Page != 1 || d.PerPage != 20 {
		t.Fatalf("expected defaults, got page %d per_page %d", d.Page, d.PerPage)
	}
}
