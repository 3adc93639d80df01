// Package espn implements provider.SportsProvider against ESPN's public
// site API (site.api.espn.com). Grounded on
// original_source/teamarr/providers/espn/client.py (full file read) for
// the endpoint shapes (scoreboard/teams/summary), the sport/league path
// pair resolution, and the STATUS_MAP status table in
// original_source/teamarr/providers/espn/constants.py; resilience
// (timeouts, 429/5xx retry-with-backoff) is reused from
// internal/httpclient rather than hand-rolled, since that package already
// implements the same Retry-After/backoff/jitter behavior the Python
// client's _calculate_delay/_request loop does.
package espn

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nreeb/teamarr/internal/domain"
	"github.com/nreeb/teamarr/internal/httpclient"
	"github.com/nreeb/teamarr/internal/leaguemap"
)

const (
	baseURL    = "https://site.api.espn.com/apis/site/v2/sports"
	ufcURL     = baseURL + "/mma/ufc/scoreboard"
	userAgent  = "teamarr/1.0 (+espn-adapter)"
	providerID = "espn"
)

// statusMap mirrors constants.py's STATUS_MAP: ESPN's type.name values
// collapsed onto our five-state domain.EventStatus.
var statusMap = map[string]domain.EventStatus{
	"STATUS_SCHEDULED":     domain.StatusScheduled,
	"STATUS_IN_PROGRESS":   domain.StatusLive,
	"STATUS_HALFTIME":      domain.StatusLive,
	"STATUS_END_PERIOD":    domain.StatusLive,
	"STATUS_FINAL":         domain.StatusFinal,
	"STATUS_FINAL_OT":      domain.StatusFinal,
	"STATUS_FULL_TIME":     domain.StatusFinal,
	"STATUS_FULL_TIME_ET":  domain.StatusFinal,
	"STATUS_FULL_PEN":      domain.StatusFinal,
	"STATUS_ABANDONED":     domain.StatusCancelled,
	"STATUS_POSTPONED":     domain.StatusPostponed,
	"STATUS_CANCELED":      domain.StatusCancelled,
	"STATUS_DELAYED":       domain.StatusDelayed,
}

// collegeScoreboardGroups mirrors COLLEGE_SCOREBOARD_GROUPS: some college
// leagues need a "groups" query param to return the full division.
var collegeScoreboardGroups = map[string]string{
	"mens-college-basketball":   "50",
	"womens-college-basketball": "50",
}

// Provider implements provider.SportsProvider against ESPN's site API.
// leagues supplies the (sport, espn_league) override per canonical league
// code, since ESPN has no single consistent league→sport mapping (e.g.
// "nfl" -> sport "football", league "nfl"; "eng.1" -> sport "soccer",
// league "eng.1").
type Provider struct {
	leagues *leaguemap.Source
	client  *http.Client
}

// New builds an ESPN provider. leagues is required: ESPN league routing
// has no built-in convention beyond soccer's dot-notation, so every other
// sport must come from the leagues table's provider_league_id override.
func New(leagues *leaguemap.Source) *Provider {
	return &Provider{leagues: leagues, client: httpclient.Default()}
}

func (p *Provider) Name() string { return providerID }

func (p *Provider) SupportsLeague(league string) bool {
	_, ok := p.leagues.ForProvider(providerID, league)
	return ok || strings.Contains(league, ".")
}

func (p *Provider) GetSupportedLeagues() []string {
	mappings := p.leagues.ForProviderAll(providerID)
	out := make([]string, 0, len(mappings))
	for _, m := range mappings {
		out = append(out, m.LeagueCode)
	}
	return out
}

// sportLeague resolves (sport, espn_league) for a canonical league code.
// Database config (the leagues table's provider_league_id, encoded as
// "sport:espn_league") is the source of truth when present; soccer's
// dot-notation ("eng.1", "uefa.champions") can be inferred without one.
func (p *Provider) sportLeague(league string) (sport, espnLeague string) {
	if m, ok := p.leagues.ForProvider(providerID, league); ok && m.ProviderLeagueID != "" {
		if sp, el, found := strings.Cut(m.ProviderLeagueID, ":"); found {
			return sp, el
		}
	}
	if strings.Contains(league, ".") {
		return "soccer", league
	}
	log.Printf("[ESPN] no provider_league_id override for league %q; treating as unknown sport", league)
	return "unknown", league
}

func (p *Provider) GetEvents(ctx context.Context, league string, date time.Time) ([]domain.Event, error) {
	if strings.EqualFold(league, "ufc") {
		return p.getUFCEvents(ctx, date)
	}
	sport, espnLeague := p.sportLeague(league)
	url := fmt.Sprintf("%s/%s/%s/scoreboard", baseURL, sport, espnLeague)
	params := map[string]string{"dates": date.UTC().Format("20060102")}
	if groups, ok := collegeScoreboardGroups[league]; ok {
		params["groups"] = groups
	}

	var sb scoreboardResponse
	if err := p.get(ctx, url, params, &sb); err != nil {
		log.Printf("[ESPN] scoreboard %s/%s: %v", sport, espnLeague, err)
		return nil, nil
	}
	events := make([]domain.Event, 0, len(sb.Events))
	for _, e := range sb.Events {
		ev, ok := parseEvent(e, league, sport)
		if ok {
			events = append(events, ev)
		}
	}
	return events, nil
}

func (p *Provider) GetEvent(ctx context.Context, id, league string) (*domain.Event, error) {
	sport, espnLeague := p.sportLeague(league)
	url := fmt.Sprintf("%s/%s/%s/summary", baseURL, sport, espnLeague)
	var sb scoreboardResponse
	if err := p.get(ctx, url, map[string]string{"event": id}, &sb); err != nil {
		log.Printf("[ESPN] event %s/%s/%s: %v", sport, espnLeague, id, err)
		return nil, nil
	}
	for _, e := range sb.Events {
		if e.ID == id {
			if ev, ok := parseEvent(e, league, sport); ok {
				return &ev, nil
			}
		}
	}
	return nil, nil
}

func (p *Provider) GetTeam(ctx context.Context, id, league string) (*domain.Team, error) {
	sport, espnLeague := p.sportLeague(league)
	url := fmt.Sprintf("%s/%s/%s/teams/%s", baseURL, sport, espnLeague, id)
	var tr teamResponse
	if err := p.get(ctx, url, nil, &tr); err != nil {
		log.Printf("[ESPN] team %s/%s/%s: %v", sport, espnLeague, id, err)
		return nil, nil
	}
	t := parseTeam(tr.Team, league, sport)
	return &t, nil
}

func (p *Provider) GetLeagueTeams(ctx context.Context, league string) ([]domain.Team, error) {
	sport, espnLeague := p.sportLeague(league)
	url := fmt.Sprintf("%s/%s/%s/teams", baseURL, sport, espnLeague)
	var tr teamsResponse
	if err := p.get(ctx, url, map[string]string{"limit": "1000"}, &tr); err != nil {
		log.Printf("[ESPN] teams %s/%s: %v", sport, espnLeague, err)
		return nil, nil
	}
	out := make([]domain.Team, 0, len(tr.Sports))
	for _, s := range tr.Sports {
		for _, l := range s.Leagues {
			for _, entry := range l.Teams {
				out = append(out, parseTeam(entry.Team, league, sport))
			}
		}
	}
	return out, nil
}

// getUFCEvents queries the mma/ufc/scoreboard path without a date
// filter and keeps only the events whose start falls on the target UTC
// day.
func (p *Provider) getUFCEvents(ctx context.Context, date time.Time) ([]domain.Event, error) {
	var sb scoreboardResponse
	if err := p.get(ctx, ufcURL, nil, &sb); err != nil {
		log.Printf("[ESPN] ufc scoreboard: %v", err)
		return nil, nil
	}
	out := make([]domain.Event, 0, len(sb.Events))
	for _, e := range sb.Events {
		ev, ok := parseEvent(e, "ufc", "mma")
		if !ok {
			continue
		}
		if !sameDay(ev.StartTime, date) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func sameDay(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func (p *Provider) get(ctx context.Context, url string, params map[string]string, into any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	if len(params) > 0 {
		q := req.URL.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		req.URL.RawQuery = q.Encode()
	}

	resp, err := httpclient.DoWithRetry(ctx, p.client, req, httpclient.ProviderRetryPolicy)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("espn: HTTP %d for %s: %s", resp.StatusCode, url, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(into)
}

// ── response shapes (trimmed to the fields we actually consume) ──────────

type scoreboardResponse struct {
	Events []espnEvent `json:"events"`
}

type espnEvent struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Date         string              `json:"date"`
	Status       espnStatus          `json:"status"`
	Competitions []espnCompetition   `json:"competitions"`
}

type espnStatus struct {
	Type struct {
		Name string `json:"name"`
	} `json:"type"`
}

type espnCompetition struct {
	Venue       espnVenue        `json:"venue"`
	Competitors []espnCompetitor `json:"competitors"`
	Broadcasts  []struct {
		Names []string `json:"names"`
	} `json:"broadcasts"`
}

type espnVenue struct {
	FullName string `json:"fullName"`
}

type espnCompetitor struct {
	HomeAway string   `json:"homeAway"`
	Score    string   `json:"score"`
	Team     espnTeam `json:"team"`
}

type espnTeam struct {
	ID           string `json:"id"`
	DisplayName  string `json:"displayName"`
	ShortName    string `json:"shortDisplayName"`
	Abbreviation string `json:"abbreviation"`
	Logos        []struct {
		Href string `json:"href"`
	} `json:"logos"`
}

type teamResponse struct {
	Team espnTeam `json:"team"`
}

type teamsResponse struct {
	Sports []struct {
		Leagues []struct {
			Teams []struct {
				Team espnTeam `json:"team"`
			} `json:"teams"`
		} `json:"leagues"`
	} `json:"sports"`
}

func parseEvent(e espnEvent, league, sport string) (domain.Event, bool) {
	start, err := time.Parse(time.RFC3339, e.Date)
	if err != nil {
		// ESPN commonly omits seconds ("2026-09-10T17:00Z").
		start, err = time.Parse("2006-01-02T15:04Z07:00", e.Date)
		if err != nil {
			return domain.Event{}, false
		}
	}
	if len(e.Competitions) == 0 {
		return domain.Event{}, false
	}
	comp := e.Competitions[0]
	var home, away domain.Team
	scores := make(map[string]int)
	for _, c := range comp.Competitors {
		t := parseTeam(c.Team, league, sport)
		if score, err := strconv.Atoi(c.Score); err == nil {
			scores[t.ProviderTeamID] = score
		}
		if c.HomeAway == "home" {
			home = t
		} else {
			away = t
		}
	}
	var broadcasts []string
	for _, b := range comp.Broadcasts {
		broadcasts = append(broadcasts, b.Names...)
	}
	status, ok := statusMap[e.Status.Type.Name]
	if !ok {
		status = domain.StatusScheduled
	}
	return domain.Event{
		Provider:   providerID,
		EventID:    e.ID,
		StartTime:  start.UTC(),
		HomeTeam:   home,
		AwayTeam:   away,
		Status:     status,
		Sport:      sport,
		League:     league,
		Name:       e.Name,
		Venue:      comp.Venue.FullName,
		Broadcasts: broadcasts,
		Scores:     scores,
	}, true
}

func parseTeam(t espnTeam, league, sport string) domain.Team {
	logo := ""
	if len(t.Logos) > 0 {
		logo = t.Logos[0].Href
	}
	return domain.Team{
		ProviderTeamID: t.ID,
		Provider:       providerID,
		League:         league,
		Sport:          sport,
		Name:           t.DisplayName,
		ShortName:      t.ShortName,
		Abbreviation:   t.Abbreviation,
		LogoURL:        logo,
	}
}
