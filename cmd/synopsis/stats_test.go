package main

import (
	"strings"
	"testing"

	"github.com/amishk599/synopsis/internal/catalog"
)

func TestRenderStats(t *testing.T) {
	years := []catalog.YearStats{
		{Year: 2001, Total: 1200, Eligible: 1000, Enriched: 250, Pending: 750},
		{Year: 2002, Total: 3, Eligible: 0, Enriched: 0, Pending: 0},
	}
	out := renderStats(years, 252, false)

	for _, want := range []string{"2001", "1,200", "1,000", "750", "25%", "TOTAL", "1,203", "2 stored results have no matching metadata row"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("non-terminal output must not contain ANSI escapes")
	}
}

func TestStatsRow_NoEligible(t *testing.T) {
	row := statsRow("2002", catalog.YearStats{Year: 2002, Total: 3})
	if row[5] != "-" {
		t.Errorf("Done = %v, want -", row[5])
	}
}
