// Package hockeytech implements provider.SportsProvider against the
// HockeyTech feed API that powers CHL (OHL/WHL/QMJHL), AHL, PWHL, and
// USHL league websites. Grounded on
// original_source/teamarr/providers/hockeytech/client.py and
// provider.py (both full files read): the modulekit feed's
// schedule/teamsbyseason views, the per-league API key table (public
// keys published on the league sites, not secrets), the
// city+nickname team-name assembly, and the game_status free-text
// parsing rules (period-indicator regex for live, "final"-prefix for
// final, "ppd" for postponed).
package hockeytech

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nreeb/teamarr/internal/domain"
	"github.com/nreeb/teamarr/internal/httpclient"
	"github.com/nreeb/teamarr/internal/leaguemap"
)

const (
	feedURL    = "https://lscluster.hockeytech.com/feed/"
	providerID = "hockeytech"
)

// apiKeys are the public per-league client keys used by the official
// league websites (not secrets — see client.py's API_KEYS table).
var apiKeys = map[string]string{
	"chl":   "f1aa699db3d81487",
	"ohl":   "f1aa699db3d81487",
	"whl":   "f1aa699db3d81487",
	"lhjmq": "f1aa699db3d81487",
	"ahl":   "50c2cd9b5e18e390",
	"echl":  "2c2b89ea7345cae8",
	"pwhl":  "446521baf8c38984",
	"ushl":  "e828f89b243dc43f",
	"ojhl":  "77a0bd73d9d363d3",
	"bchl":  "ca4e9e599d4dae55",
	"sjhl":  "2fb5c2e84bf3e4a8",
	"ajhl":  "cbe60a1d91c44ade",
	"mjhl":  "f894c324fe5fd8f0",
	"mhl":   "4a948e7faf5ee58d",
}

var periodRe = regexp.MustCompile(`(?i)(1st|2nd|3rd|ot|so|\d+:\d+)`)

// Provider implements provider.SportsProvider over the HockeyTech feed.
// leagues resolves a canonical league code to its HockeyTech client_code
// via provider_league_id, the same routing convention the grounding
// source uses via LeagueMappingSource.
type Provider struct {
	leagues *leaguemap.Source
	client  *http.Client
}

func New(leagues *leaguemap.Source) *Provider {
	return &Provider{leagues: leagues, client: httpclient.Default()}
}

func (p *Provider) Name() string { return providerID }

func (p *Provider) clientCode(league string) (string, bool) {
	m, ok := p.leagues.ForProvider(providerID, league)
	if !ok || m.ProviderLeagueID == "" {
		return "", false
	}
	return m.ProviderLeagueID, true
}

func (p *Provider) SupportsLeague(league string) bool {
	code, ok := p.clientCode(league)
	if !ok {
		return false
	}
	_, known := apiKeys[code]
	return known
}

func (p *Provider) GetSupportedLeagues() []string {
	mappings := p.leagues.ForProviderAll(providerID)
	out := make([]string, 0, len(mappings))
	for _, m := range mappings {
		out = append(out, m.LeagueCode)
	}
	return out
}

func (p *Provider) sport(league string) string {
	if m, ok := p.leagues.ForProvider(providerID, league); ok && m.Sport != "" {
		return m.Sport
	}
	return "hockey"
}

func (p *Provider) GetEvents(ctx context.Context, league string, date time.Time) ([]domain.Event, error) {
	schedule, err := p.schedule(ctx, league)
	if err != nil {
		log.Printf("[HOCKEYTECH] schedule %s: %v", league, err)
		return nil, nil
	}
	dateStr := date.UTC().Format("2006-01-02")
	sport := p.sport(league)
	var out []domain.Event
	for _, g := range schedule {
		if g.DatePlayed != dateStr {
			continue
		}
		if ev, ok := parseEvent(g, league, sport); ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (p *Provider) GetEvent(ctx context.Context, id, league string) (*domain.Event, error) {
	schedule, err := p.schedule(ctx, league)
	if err != nil {
		log.Printf("[HOCKEYTECH] schedule %s: %v", league, err)
		return nil, nil
	}
	sport := p.sport(league)
	for _, g := range schedule {
		if strconv.Itoa(g.GameID) == id {
			if ev, ok := parseEvent(g, league, sport); ok {
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

func (p *Provider) GetLeagueTeams(ctx context.Context, league string) ([]domain.Team, error) {
	code, ok := p.clientCode(league)
	if !ok {
		log.Printf("[HOCKEYTECH] unknown league %q", league)
		return nil, nil
	}
	key, ok := apiKeys[code]
	if !ok {
		log.Printf("[HOCKEYTECH] no api key for client_code %q", code)
		return nil, nil
	}
	var resp sitekitTeamsResponse
	if err := p.request(ctx, code, key, "teamsbyseason", nil, &resp); err != nil {
		log.Printf("[HOCKEYTECH] teams %s: %v", league, err)
		return nil, nil
	}
	sport := p.sport(league)
	out := make([]domain.Team, 0, len(resp.SiteKit.Teamsbyseason))
	for _, t := range resp.SiteKit.Teamsbyseason {
		out = append(out, parseTeamEntry(t, league, sport, code))
	}
	return out, nil
}

func (p *Provider) schedule(ctx context.Context, league string) ([]hockeyGame, error) {
	code, ok := p.clientCode(league)
	if !ok {
		return nil, fmt.Errorf("no client_code configured for league %q", league)
	}
	key, ok := apiKeys[code]
	if !ok {
		return nil, fmt.Errorf("no api key for client_code %q", code)
	}
	var resp sitekitScheduleResponse
	if err := p.request(ctx, code, key, "schedule", nil, &resp); err != nil {
		return nil, err
	}
	return resp.SiteKit.Schedule, nil
}

func (p *Provider) request(ctx context.Context, clientCode, apiKey, view string, extra map[string]string, into any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return err
	}
	q := req.URL.Query()
	q.Set("feed", "modulekit")
	q.Set("key", apiKey)
	q.Set("view", view)
	q.Set("client_code", clientCode)
	q.Set("fmt", "json")
	q.Set("lang", "en")
	for k, v := range extra {
		q.Set(k, v)
	}
	req.URL.RawQuery = q.Encode()

	resp, err := httpclient.DoWithRetry(ctx, p.client, req, httpclient.DefaultRetryPolicy)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("hockeytech: HTTP %d for view %q", resp.StatusCode, view)
	}
	return json.NewDecoder(resp.Body).Decode(into)
}

// ── response shapes ───────────────────────────────────────────────────────

type sitekitScheduleResponse struct {
	SiteKit struct {
		Schedule []hockeyGame `json:"Schedule"`
	} `json:"SiteKit"`
}

type sitekitTeamsResponse struct {
	SiteKit struct {
		Teamsbyseason []hockeyTeamEntry `json:"Teamsbyseason"`
	} `json:"SiteKit"`
}

type hockeyGame struct {
	GameID             int    `json:"game_id"`
	DatePlayed         string `json:"date_played"`
	GameDateISO8601    string `json:"GameDateISO8601"`
	GameStatus         string `json:"game_status"`
	HomeTeam           string `json:"home_team"`
	VisitingTeam       string `json:"visiting_team"`
	HomeTeamCity       string `json:"home_team_city"`
	HomeTeamNickname   string `json:"home_team_nickname"`
	HomeTeamCode       string `json:"home_team_code"`
	VisitorTeamCity    string `json:"visiting_team_city"`
	VisitorTeamNick    string `json:"visiting_team_nickname"`
	VisitorTeamCode    string `json:"visiting_team_code"`
	HomeGoalCount      string `json:"home_goal_count"`
	VisitingGoalCount  string `json:"visiting_goal_count"`
	VenueName          string `json:"venue_name"`
}

type hockeyTeamEntry struct {
	ID       string `json:"id"`
	City     string `json:"city"`
	Nickname string `json:"nickname"`
	Code     string `json:"code"`
	Name     string `json:"name"`
}

func parseEvent(g hockeyGame, league, sport string) (domain.Event, bool) {
	start, ok := parseGameTime(g)
	if !ok {
		return domain.Event{}, false
	}
	home := buildTeam(g.HomeTeam, g.HomeTeamCity, g.HomeTeamNickname, g.HomeTeamCode, league, sport)
	away := buildTeam(g.VisitingTeam, g.VisitorTeamCity, g.VisitorTeamNick, g.VisitorTeamCode, league, sport)
	scores := make(map[string]int)
	if v, err := strconv.Atoi(g.HomeGoalCount); err == nil {
		scores[home.ProviderTeamID] = v
	}
	if v, err := strconv.Atoi(g.VisitingGoalCount); err == nil {
		scores[away.ProviderTeamID] = v
	}
	return domain.Event{
		Provider:  providerID,
		EventID:   strconv.Itoa(g.GameID),
		StartTime: start,
		HomeTeam:  home,
		AwayTeam:  away,
		Status:    parseStatus(g.GameStatus),
		Sport:     sport,
		League:    league,
		Name:      fmt.Sprintf("%s at %s", away.Name, home.Name),
		Venue:     g.VenueName,
		Scores:    scores,
	}, true
}

func parseGameTime(g hockeyGame) (time.Time, bool) {
	if g.GameDateISO8601 != "" {
		if t, err := time.Parse(time.RFC3339, g.GameDateISO8601); err == nil {
			return t.UTC(), true
		}
	}
	if g.DatePlayed != "" {
		if t, err := time.Parse("2006-01-02", g.DatePlayed); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func parseStatus(raw string) domain.EventStatus {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case s == "":
		return domain.StatusScheduled
	case strings.HasPrefix(s, "final"):
		return domain.StatusFinal
	case s == "ppd" || s == "postponed":
		return domain.StatusPostponed
	case s == "cancelled" || s == "canceled":
		return domain.StatusCancelled
	case periodRe.MatchString(s):
		return domain.StatusLive
	default:
		return domain.StatusScheduled
	}
}

func buildTeam(id, city, nickname, code, league, sport string) domain.Team {
	name := strings.TrimSpace(city + " " + nickname)
	if name == "" {
		name = city
	}
	abbrev := code
	if abbrev == "" {
		abbrev = makeAbbrev(name)
	}
	logo := ""
	if id != "" {
		logo = fmt.Sprintf("https://assets.leaguestat.com/%s/logos/%s.png", league, id)
	}
	return domain.Team{
		ProviderTeamID: id,
		Provider:       providerID,
		League:         league,
		Sport:          sport,
		Name:           name,
		ShortName:      nickname,
		Abbreviation:   abbrev,
		LogoURL:        logo,
	}
}

func parseTeamEntry(t hockeyTeamEntry, league, sport, clientCode string) domain.Team {
	name := strings.TrimSpace(t.City + " " + t.Nickname)
	if name == "" {
		name = t.Name
	}
	abbrev := t.Code
	if abbrev == "" {
		abbrev = makeAbbrev(name)
	}
	logo := ""
	if t.ID != "" {
		logo = fmt.Sprintf("https://assets.leaguestat.com/%s/logos/%s.png", clientCode, t.ID)
	}
	return domain.Team{
		ProviderTeamID: t.ID,
		Provider:       providerID,
		League:         league,
		Sport:          sport,
		Name:           name,
		ShortName:      t.Nickname,
		Abbreviation:   abbrev,
		LogoURL:        logo,
	}
}

func makeAbbrev(name string) string {
	words := strings.Fields(name)
	if len(words) == 0 {
		return ""
	}
	last := words[len(words)-1]
	if len(last) > 3 {
		last = last[:3]
	}
	return strings.ToUpper(last)
}
