package main

import (
	"testing"
	"time"

	"github.com/amishk599/synopsis/internal/config"
)

func TestHTTPClientTimeouts(t *testing.T) {
	cfg := &config.Config{}
	cfg.Enrichment.Timeout = 90 * time.Second

	if got := newHTTPClient(cfg).Timeout; got != 90*time.Second {
		t.Errorf("enrichment client timeout = %v, want 90s", got)
	}
	if got := newReportClient().Timeout; got != reportTimeout {
		t.Errorf("report client timeout = %v, want %v", got, reportTimeout)
	}
	if got := newAniListClient().Timeout; got != anilistTimeout {
		t.Errorf("anilist client timeout = %v, want %v", got, anilistTimeout)
	}
}
