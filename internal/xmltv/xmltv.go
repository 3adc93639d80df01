// Package xmltv implements the XMLTV guide serializer: one <channel>
// per domain.ManagedChannel and one <programme> per emitted slot,
// written atomically to disk. Grounded on internal/tuner/xmltv.go for
// the overall shape (fetch/remap -> serialize, channel+programme XML
// element types, "YYYYMMDDHHMMSS +0000" timestamp format) and
// internal/sdtprobe/worker.go's writeCache for the atomic
// temp-file-then-rename idiom, extended here to also preserve the
// previous guide as a .bak file before replacing it.
package xmltv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/nreeb/teamarr/internal/domain"
)

const timeLayout = "20060102150405 -0700"

// Writer accumulates programme slots across one generation's worth of
// orchestrator.ProgrammeSink calls, then serializes the whole guide to
// Path on Flush. WriteProgramme never touches disk itself — a tick
// emits one call per channel per matched event, and writing the full
// file on every call would both thrash the disk and leave a
// half-written guide visible to readers mid-tick.
type Writer struct {
	Path string

	mu         sync.Mutex
	channels   map[string]domain.ManagedChannel // tvg_id -> channel
	programmes []programmeEntry
}

type programmeEntry struct {
	channel domain.ManagedChannel
	event   domain.Event
	segment string
	start   time.Time
	end     time.Time
}

func New(path string) *Writer {
	return &Writer{Path: path, channels: make(map[string]domain.ManagedChannel)}
}

// WriteProgramme implements orchestrator.ProgrammeSink. Safe for
// concurrent use since a generation may process several groups at
// once in a future scheduler revision, though today's orchestrator
// calls it sequentially.
func (w *Writer) WriteProgramme(ctx context.Context, channel domain.ManagedChannel, ev domain.Event, segment string, start, end time.Time) error {
	if channel.TVGID == "" {
		return fmt.Errorf("channel %d has no tvg_id", channel.ID)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.channels[channel.TVGID] = channel
	w.programmes = append(w.programmes, programmeEntry{channel: channel, event: ev, segment: segment, start: start, end: end})
	return nil
}

// Flush serializes every channel and programme accumulated since the
// last Flush (or since New) to Path, keeping the previous file as
// Path+".bak". Resets the in-memory buffer afterward so the next
// generation starts clean.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	channels := make([]domain.ManagedChannel, 0, len(w.channels))
	for _, c := range w.channels {
		channels = append(channels, c)
	}
	programmes := w.programmes
	w.mu.Unlock()

	sort.SliceStable(channels, func(i, j int) bool {
		return channels[i].ChannelNumber < channels[j].ChannelNumber
	})
	sort.SliceStable(programmes, func(i, j int) bool {
		if programmes[i].channel.TVGID == programmes[j].channel.TVGID {
			return programmes[i].start.Before(programmes[j].start)
		}
		return programmes[i].channel.TVGID < programmes[j].channel.TVGID
	})

	data, err := render(channels, programmes)
	if err != nil {
		return fmt.Errorf("xmltv: render: %w", err)
	}
	if err := writeAtomic(w.Path, data); err != nil {
		return fmt.Errorf("xmltv: write: %w", err)
	}

	w.mu.Lock()
	w.channels = make(map[string]domain.ManagedChannel)
	w.programmes = nil
	w.mu.Unlock()
	return nil
}

func render(channels []domain.ManagedChannel, programmes []programmeEntry) ([]byte, error) {
	tv := &tvRoot{Source: "teamarr"}
	for _, c := range channels {
		tv.Channels = append(tv.Channels, xmlChannel{
			ID:      c.TVGID,
			Display: c.ChannelName,
			Icon:    iconRef(c.LogoURL),
		})
	}
	for _, p := range programmes {
		tv.Programmes = append(tv.Programmes, xmlProgramme{
			Start:   p.start.UTC().Format(timeLayout),
			Stop:    p.end.UTC().Format(timeLayout),
			Channel: p.channel.TVGID,
			Title:   xmlValue{Value: programmeTitle(p)},
			SubTitle: xmlValue{Value: p.segment},
			Desc:    xmlValue{Value: programmeDesc(p)},
		})
	}

	var buf []byte
	w := &byteBuffer{}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return nil, err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(tv); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	buf = w.Bytes()
	return buf, nil
}

func iconRef(logoURL string) *xmlIcon {
	if logoURL == "" {
		return nil
	}
	return &xmlIcon{Src: logoURL}
}

func programmeTitle(p programmeEntry) string {
	ev := p.event
	if ev.Name != "" {
		return ev.Name
	}
	return ev.AwayTeam.Name + " vs " + ev.HomeTeam.Name
}

func programmeDesc(p programmeEntry) string {
	ev := p.event
	parts := []string{}
	if ev.League != "" {
		parts = append(parts, ev.League)
	}
	if ev.Venue != "" {
		parts = append(parts, ev.Venue)
	}
	return joinNonEmpty(parts, " - ")
}

func joinNonEmpty(parts []string, sep string) string {
	out := ""
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i > 0 && out != "" {
			out += sep
		}
		out += p
	}
	return out
}

// writeAtomic mirrors internal/sdtprobe/worker.go's writeCache:
// temp file in the destination directory, write, close, rename. The
// existing file (if any) is preserved as path+".bak" before the
// rename replaces it.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(filepath.Clean(path))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".xmltv-*.xml.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(tmpName)
		if writeErr != nil {
			return fmt.Errorf("write: %w", writeErr)
		}
		return fmt.Errorf("close: %w", closeErr)
	}

	if _, err := os.Stat(path); err == nil {
		if err := copyFile(path, path+".bak"); err != nil {
			// A failed backup shouldn't block publishing the fresh guide.
			fmt.Fprintf(os.Stderr, "[XMLTV] backup %s failed: %v\n", path, err)
		}
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

// byteBuffer is a tiny io.Writer that also exposes its accumulated
// bytes, avoiding a bytes.Buffer import purely for that one method.
type byteBuffer struct {
	buf []byte
}

func (b *byteBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *byteBuffer) Bytes() []byte { return b.buf }

// ── XML element shapes, grounded on internal/tuner/xmltv.go's
// xmlTVRoot/xmlChannel/xmlProgramme/xmlValue types ──────────────────────

type tvRoot struct {
	XMLName    xml.Name       `xml:"tv"`
	Source     string         `xml:"source-info-name,attr,omitempty"`
	Channels   []xmlChannel   `xml:"channel"`
	Programmes []xmlProgramme `xml:"programme"`
}

type xmlChannel struct {
	ID      string  `xml:"id,attr"`
	Display string  `xml:"display-name"`
	Icon    *xmlIcon `xml:"icon"`
}

type xmlIcon struct {
	Src string `xml:"src,attr"`
}

type xmlProgramme struct {
	Start    string   `xml:"start,attr"`
	Stop     string   `xml:"stop,attr"`
	Channel  string   `xml:"channel,attr"`
	Title    xmlValue `xml:"title"`
	SubTitle xmlValue `xml:"sub-title,omitempty"`
	Desc     xmlValue `xml:"desc,omitempty"`
}

type xmlValue struct {
	Value string `xml:",chardata"`
}
