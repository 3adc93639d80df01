package xmltv

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nreeb/teamarr/internal/domain"
)

func TestWriteProgrammeRejectsChannelWithoutTVGID(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "guide.xml"))
	err := w.WriteProgramme(context.Background(), domain.ManagedChannel{ID: 1}, domain.Event{}, "main", time.Now(), time.Now())
	if err == nil {
		t.Fatal("expected error for channel missing tvg_id")
	}
}

func TestFlushWritesChannelsAndProgrammes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guide.xml")
	w := New(path)

	ch := domain.ManagedChannel{ID: 1, TVGID: "teamarr-1", ChannelName: "ESPN Event 1", ChannelNumber: 100}
	ev := domain.Event{
		Name:    "Lakers vs Celtics",
		League:  "nba",
		Venue:   "Crypto.com Arena",
		HomeTeam: domain.Team{Name: "Lakers"},
		AwayTeam: domain.Team{Name: "Celtics"},
	}
	start := time.Date(2026, 1, 15, 19, 0, 0, 0, time.UTC)
	end := start.Add(3 * time.Hour)

	if err := w.WriteProgramme(context.Background(), ch, ev, "main", start, end); err != nil {
		t.Fatalf("WriteProgramme: %v", err)
	}
	if err := w.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, `id="teamarr-1"`) {
		t.Errorf("missing channel id in output:\n%s", out)
	}
	if !strings.Contains(out, "Lakers vs Celtics") {
		t.Errorf("missing programme title in output:\n%s", out)
	}
	if !strings.Contains(out, `start="20260115190000 +0000"`) {
		t.Errorf("missing formatted start time in output:\n%s", out)
	}
}

func TestFlushResetsBufferedState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guide.xml")
	w := New(path)
	ch := domain.ManagedChannel{ID: 1, TVGID: "teamarr-1", ChannelName: "Channel 1"}
	w.WriteProgramme(context.Background(), ch, domain.Event{Name: "Event A"}, "main", time.Now(), time.Now())

	if err := w.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(w.channels) != 0 || len(w.programmes) != 0 {
		t.Errorf("expected buffers cleared after Flush, channels=%d programmes=%d", len(w.channels), len(w.programmes))
	}
}

func TestFlushPreservesPreviousFileAsBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guide.xml")
	w := New(path)
	ch := domain.ManagedChannel{ID: 1, TVGID: "teamarr-1", ChannelName: "Channel 1"}

	w.WriteProgramme(context.Background(), ch, domain.Event{Name: "Event A"}, "main", time.Now(), time.Now())
	if err := w.Flush(context.Background()); err != nil {
		t.Fatalf("first Flush: %v", err)
	}

	w.WriteProgramme(context.Background(), ch, domain.Event{Name: "Event B"}, "main", time.Now(), time.Now())
	if err := w.Flush(context.Background()); err != nil {
		t.Fatalf("second Flush: %v", err)
	}

	bak, err := os.ReadFile(path + ".bak")
	if err != nil {
		t.Fatalf("expected .bak file: %v", err)
	}
	if !strings.Contains(string(bak), "Event A") {
		t.Errorf(".bak should contain the previous guide's content, got:\n%s", bak)
	}
	cur, _ := os.ReadFile(path)
	if !strings.Contains(string(cur), "Event B") {
		t.Errorf("current guide should contain the latest content, got:\n%s", cur)
	}
}

func TestIconRefOmittedWhenLogoURLEmpty(t *testing.T) {
	if iconRef("") != nil {
		t.Error("expected nil icon ref for empty logo URL")
	}
	if ref := iconRef("http://example.com/logo.png"); ref == nil || ref.Src != "http://example.com/logo.png" {
		t.Errorf("iconRef = %+v", ref)
	}
}

func TestProgrammeTitleFallsBackToTeamNames(t *testing.T) {
	p := programmeEntry{event: domain.Event{
		HomeTeam: domain.Team{Name: "Lakers"},
		AwayTeam: domain.Team{Name: "Celtics"},
	}}
	if got := programmeTitle(p); got != "Celtics vs Lakers" {
		t.Errorf("programmeTitle = %q", got)
	}
}

func TestProgrammeDescJoinsLeagueAndVenue(t *testing.T) {
	p := programmeEntry{event: domain.Event{League: "nba", Venue: "Crypto.com Arena"}}
	if got := programmeDesc(p); got != "nba - Crypto.com Arena" {
		t.Errorf("programmeDesc = %q", got)
	}
}

func TestProgrammeDescOmitsMissingFields(t *testing.T) {
	p := programmeEntry{event: domain.Event{League: "nba"}}
	if got := programmeDesc(p); got != "nba" {
		t.Errorf("programmeDesc = %q, want just league", got)
	}
}
