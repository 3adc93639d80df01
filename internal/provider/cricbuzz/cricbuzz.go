// Package cricbuzz implements provider.SportsProvider against Cricbuzz's
// match-data JSON endpoints. Grounded on
// original_source/teamarr/providers/cricbuzz/provider.py (full file
// read) for the match/team JSON field shapes (matchId, startDate as a
// millisecond Unix timestamp, team1/team2, venueInfo, state/status) and
// the state→domain.EventStatus mapping; the Python client.py behind it
// wasn't present in this pack, so resolveSlug (used only when a
// league's provider_league_id carries a series id without the matching
// URL slug) is new code grounded on HockeyTech's client.py "no rate
// limiting observed, but cache/throttle to be respectful" stance —
// scraping the series page is the one place this provider touches HTML
// rather than JSON.
package cricbuzz

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/nreeb/teamarr/internal/domain"
	"github.com/nreeb/teamarr/internal/httpclient"
	"github.com/nreeb/teamarr/internal/leaguemap"
)

const (
	apiBase     = "https://www.cricbuzz.com/api/cricket-series"
	seriesBase  = "https://www.cricbuzz.com/cricket-series"
	providerID  = "cricbuzz"
	userAgent   = "teamarr/1.0 (+cricbuzz-adapter)"
)

// Provider implements provider.SportsProvider against Cricbuzz.
// leagues resolves a canonical league code (ipl, cpl, bbl, ...) to a
// Cricbuzz series id (and, when known, its URL slug) via
// provider_league_id, encoded "series_id:series_slug" — slug may be
// empty, in which case resolveSlug scrapes it once and caches it.
type Provider struct {
	leagues *leaguemap.Source
	client  *http.Client
	limiter *rate.Limiter

	slugCache map[string]string
}

func New(leagues *leaguemap.Source) *Provider {
	return &Provider{
		leagues: leagues,
		client:  httpclient.Default(),
		// one request per two seconds: Cricbuzz has no published rate
		// limit, scraping the series page is the only non-API call this
		// provider makes and it's a rare, cached lookup.
		limiter:   rate.NewLimiter(rate.Every(2*time.Second), 1),
		slugCache: make(map[string]string),
	}
}

func (p *Provider) Name() string { return providerID }

func (p *Provider) seriesConfig(league string) (seriesID, slug string, ok bool) {
	m, found := p.leagues.ForProvider(providerID, league)
	if !found || m.ProviderLeagueID == "" {
		return "", "", false
	}
	id, s, _ := strings.Cut(m.ProviderLeagueID, ":")
	return id, s, id != ""
}

func (p *Provider) SupportsLeague(league string) bool {
	_, _, ok := p.seriesConfig(league)
	return ok
}

func (p *Provider) GetSupportedLeagues() []string {
	mappings := p.leagues.ForProviderAll(providerID)
	out := make([]string, 0, len(mappings))
	for _, m := range mappings {
		out = append(out, m.LeagueCode)
	}
	return out
}

func (p *Provider) resolveSlug(ctx context.Context, seriesID, slug string) string {
	if slug != "" {
		return slug
	}
	if cached, ok := p.slugCache[seriesID]; ok {
		return cached
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return ""
	}
	resolved, err := scrapeSeriesSlug(ctx, p.client, seriesID)
	if err != nil {
		log.Printf("[CRICBUZZ] slug lookup for series %s: %v", seriesID, err)
		return ""
	}
	p.slugCache[seriesID] = resolved
	return resolved
}

func (p *Provider) matches(ctx context.Context, league string) ([]cricMatch, error) {
	seriesID, slug, ok := p.seriesConfig(league)
	if !ok {
		return nil, fmt.Errorf("no series configured for league %q", league)
	}
	slug = p.resolveSlug(ctx, seriesID, slug)
	url := fmt.Sprintf("%s/%s/%s/matches", apiBase, seriesID, slug)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := httpclient.DoWithRetry(ctx, p.client, req, httpclient.DefaultRetryPolicy)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cricbuzz: HTTP %d for series %s", resp.StatusCode, seriesID)
	}
	var mr matchesResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return nil, err
	}
	return mr.MatchDetails, nil
}

func (p *Provider) GetEvents(ctx context.Context, league string, date time.Time) ([]domain.Event, error) {
	matches, err := p.matches(ctx, league)
	if err != nil {
		log.Printf("[CRICBUZZ] matches %s: %v", league, err)
		return nil, nil
	}
	out := make([]domain.Event, 0, len(matches))
	for _, m := range matches {
		ev, ok := parseEvent(m, league)
		if !ok || !sameDay(ev.StartTime, date) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (p *Provider) GetEvent(ctx context.Context, id, league string) (*domain.Event, error) {
	matches, err := p.matches(ctx, league)
	if err != nil {
		log.Printf("[CRICBUZZ] matches %s: %v", league, err)
		return nil, nil
	}
	for _, m := range matches {
		if strconv.Itoa(m.MatchID) == id {
			if ev, ok := parseEvent(m, league); ok {
				return &ev, nil
			}
		}
	}
	return nil, nil
}

func (p *Provider) GetTeam(ctx context.Context, id, league string) (*domain.Team, error) {
	teams, err := p.GetLeagueTeams(ctx, league)
	if err != nil {
		return nil, err
	}
	for _, t := range teams {
		if t.ProviderTeamID == id {
			return &t, nil
		}
	}
	return nil, nil
}

// GetLeagueTeams derives the team roster from the series' match list,
// since Cricbuzz's series-teams endpoint has the same shape as the
// team1/team2 fields embedded in every match.
func (p *Provider) GetLeagueTeams(ctx context.Context, league string) ([]domain.Team, error) {
	matches, err := p.matches(ctx, league)
	if err != nil {
		log.Printf("[CRICBUZZ] teams %s: %v", league, err)
		return nil, nil
	}
	seen := make(map[string]bool)
	var out []domain.Team
	for _, m := range matches {
		for _, td := range []cricTeam{m.Team1, m.Team2} {
			t, ok := parseTeam(td, league)
			if !ok || seen[t.ProviderTeamID] {
				continue
			}
			seen[t.ProviderTeamID] = true
			out = append(out, t)
		}
	}
	return out, nil
}

func sameDay(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// ── response shapes ───────────────────────────────────────────────────────

type matchesResponse struct {
	MatchDetails []cricMatch `json:"matchDetails"`
}

type cricMatch struct {
	MatchID    int      `json:"matchId"`
	StartDate  int64    `json:"startDate"`
	MatchDesc  string   `json:"matchDesc"`
	SeriesName string   `json:"seriesName"`
	State      string   `json:"state"`
	Status     string   `json:"status"`
	Team1      cricTeam `json:"team1"`
	Team2      cricTeam `json:"team2"`
	VenueInfo  struct {
		Ground string `json:"ground"`
		City   string `json:"city"`
	} `json:"venueInfo"`
}

type cricTeam struct {
	TeamID   int    `json:"teamId"`
	TeamName string `json:"teamName"`
	TeamSName string `json:"teamSName"`
	ImageID  int    `json:"imageId"`
}

func parseEvent(m cricMatch, league string) (domain.Event, bool) {
	if m.MatchID == 0 || m.StartDate == 0 {
		return domain.Event{}, false
	}
	home, homeOK := parseTeam(m.Team1, league)
	away, awayOK := parseTeam(m.Team2, league)
	if !homeOK || !awayOK {
		return domain.Event{}, false
	}
	name := fmt.Sprintf("%s vs %s", away.Name, home.Name)
	if m.MatchDesc != "" {
		name = fmt.Sprintf("%s - %s", name, m.MatchDesc)
	}
	return domain.Event{
		Provider:  providerID,
		EventID:   strconv.Itoa(m.MatchID),
		StartTime: time.UnixMilli(m.StartDate).UTC(),
		HomeTeam:  home,
		AwayTeam:  away,
		Status:    parseStatus(m.State),
		Sport:     "cricket",
		League:    league,
		Name:      name,
		Venue:     m.VenueInfo.Ground,
	}, true
}

func parseTeam(t cricTeam, league string) (domain.Team, bool) {
	if t.TeamID == 0 || t.TeamName == "" {
		return domain.Team{}, false
	}
	short := t.TeamSName
	if short == "" {
		short = strings.ToUpper(firstN(t.TeamName, 3))
	}
	abbrev := short
	if len(abbrev) > 4 {
		abbrev = makeAbbrev(t.TeamName)
	}
	logo := ""
	if t.ImageID != 0 {
		logo = fmt.Sprintf("https://static.cricbuzz.com/a/img/v1/i1/c%d/i.jpg", t.ImageID)
	}
	return domain.Team{
		ProviderTeamID: strconv.Itoa(t.TeamID),
		Provider:       providerID,
		League:         league,
		Sport:          "cricket",
		Name:           t.TeamName,
		ShortName:      short,
		Abbreviation:   abbrev,
		LogoURL:        logo,
	}, true
}

func parseStatus(state string) domain.EventStatus {
	switch strings.ToLower(state) {
	case "complete", "finished":
		return domain.StatusFinal
	case "live", "inprogress", "innings break":
		return domain.StatusLive
	case "preview", "upcoming":
		return domain.StatusScheduled
	case "delay", "delayed", "rain", "rain delay":
		return domain.StatusDelayed
	case "abandon", "abandoned", "no result":
		return domain.StatusCancelled
	case "postponed":
		return domain.StatusPostponed
	default:
		return domain.StatusScheduled
	}
}

func firstN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func makeAbbrev(name string) string {
	words := strings.Fields(name)
	if len(words) >= 2 {
		var b strings.Builder
		for _, w := range words {
			if len(b.String()) >= 3 {
				break
			}
			b.WriteByte(w[0])
		}
		return strings.ToUpper(b.String())
	}
	return strings.ToUpper(firstN(name, 3))
}

// scrapeSeriesSlug fetches the series archive page and extracts the
// canonical "/cricket-series/<id>/<slug>" link's slug segment. Cricbuzz
// serves this page brotli-encoded regardless of Accept-Encoding
// negotiation, so the body is always run through a brotli reader rather
// than branching on Content-Encoding.
func scrapeSeriesSlug(ctx context.Context, client *http.Client, seriesID string) (string, error) {
	url := fmt.Sprintf("%s/%s", seriesBase, seriesID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Encoding", "br")

	resp, err := httpclient.DoWithRetry(ctx, client, req, httpclient.DefaultRetryPolicy)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("series page HTTP %d", resp.StatusCode)
	}

	var r = bufio.NewReader(brotli.NewReader(resp.Body))
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}

	prefix := "/cricket-series/" + seriesID + "/"
	var slug string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if slug != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				if strings.HasPrefix(attr.Val, prefix) {
					rest := strings.TrimPrefix(attr.Val, prefix)
					slug = strings.SplitN(rest, "/", 2)[0]
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
			if slug != "" {
				return
			}
		}
	}
	walk(doc)
	if slug == "" {
		return "", fmt.Errorf("no series link found for id %s", seriesID)
	}
	return slug, nil
}
