package orchestrator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nreeb/teamarr/internal/channelmgr"
	"github.com/nreeb/teamarr/internal/classify"
	"github.com/nreeb/teamarr/internal/domain"
	"github.com/nreeb/teamarr/internal/lifecycle"
	"github.com/nreeb/teamarr/internal/matcher"
	"github.com/nreeb/teamarr/internal/ordering"
	"github.com/nreeb/teamarr/internal/store"
	"github.com/nreeb/teamarr/internal/streamfilter"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertGroup(t *testing.T, db *store.Store) int64 {
	t.Helper()
	res, err := db.DB.Exec(`INSERT INTO event_epg_groups (name, leagues, channel_assignment_mode, enabled) VALUES ('NFL', 'nfl', 'manual', 1)`)
	if err != nil {
		t.Fatalf("insert group: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

type fakeStreamSource struct{ streams []streamfilter.RawStream }

func (f *fakeStreamSource) ListRawStreams(ctx context.Context, group domain.EventEPGGroup) ([]streamfilter.RawStream, error) {
	return f.streams, nil
}

type fakeTeams struct{ leagues []domain.LeagueMapping }

func (f *fakeTeams) FindCandidateLeagues(ctx context.Context, team1, team2, sport string) ([]domain.LeagueMapping, error) {
	return f.leagues, nil
}

type fakeEvents struct{ events []domain.Event }

func (f *fakeEvents) GetEventsWindow(ctx context.Context, league, provider string, target time.Time, windowDays int) ([]domain.Event, error) {
	return f.events, nil
}

func TestProcessGroupCreatesChannelFromTeamMatch(t *testing.T) {
	db := openTestStore(t)
	groupID := insertGroup(t, db)

	kickoff := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Hour)
	ev := domain.Event{
		Provider: "espn", EventID: "401", League: "nfl", Sport: "football",
		StartTime: kickoff, Status: domain.StatusScheduled,
		HomeTeam: domain.Team{Name: "Green Bay Packers"},
		AwayTeam: domain.Team{Name: "Detroit Lions"},
	}

	streams := &fakeStreamSource{streams: []streamfilter.RawStream{
		{ID: 1, Name: "Lions vs Packers", M3UAccountName: "Main"},
	}}
	teams := &fakeTeams{leagues: []domain.LeagueMapping{{LeagueCode: "nfl", Provider: "espn", Sport: "football"}}}
	events := &fakeEvents{events: []domain.Event{ev}}

	teamMatcher := matcher.NewTeamMatcher(teams, events, nil)
	lc := lifecycle.NewManager(lifecycle.CreateStreamAvailable, lifecycle.DeleteStreamRemoved, 3*time.Hour, nil, false, nil)
	channels := channelmgr.NewManager(db)
	order := ordering.NewService(nil, db)

	o := New(db, classify.New(classify.DefaultPatterns()), nil, teamMatcher, nil, lc, channels, order, streams, nil, 5*time.Hour)

	group := domain.EventEPGGroup{ID: groupID, Name: "NFL", Leagues: []string{"nfl"}}
	result, err := o.ProcessGroup(context.Background(), group, nil, 1)
	if err != nil {
		t.Fatalf("ProcessGroup: %v", err)
	}
	if result.Matched != 1 || result.Created != 1 {
		t.Fatalf("expected one created channel, got %+v", result)
	}

	var channelName string
	if err := db.DB.QueryRow(`SELECT channel_name FROM managed_channels WHERE group_id = ?`, groupID).Scan(&channelName); err != nil {
		t.Fatalf("query channel: %v", err)
	}
	if channelName != "Detroit Lions @ Green Bay Packers" {
		t.Errorf("unexpected channel name %q", channelName)
	}
}

func TestProcessGroupUnmatchedStreamIsSkippedNotErrored(t *testing.T) {
	db := openTestStore(t)
	groupID := insertGroup(t, db)

	streams := &fakeStreamSource{streams: []streamfilter.RawStream{
		{ID: 1, Name: "Some Unrelated Text With No Separator"},
	}}
	teams := &fakeTeams{}
	events := &fakeEvents{}
	teamMatcher := matcher.NewTeamMatcher(teams, events, nil)
	lc := lifecycle.NewManager(lifecycle.CreateStreamAvailable, lifecycle.DeleteStreamRemoved, 3*time.Hour, nil, false, nil)
	channels := channelmgr.NewManager(db)
	order := ordering.NewService(nil, db)

	o := New(db, classify.New(classify.DefaultPatterns()), nil, teamMatcher, nil, lc, channels, order, streams, nil, 5*time.Hour)
	group := domain.EventEPGGroup{ID: groupID, Name: "NFL"}

	result, err := o.ProcessGroup(context.Background(), group, nil, 1)
	if err != nil {
		t.Fatalf("ProcessGroup: %v", err)
	}
	if result.Errors != 0 {
		t.Errorf("expected no hard errors for an unmatched stream, got %+v", result)
	}
}

func TestSweepDeletionsRemovesChannelWithoutStream(t *testing.T) {
	db := openTestStore(t)
	groupID := insertGroup(t, db)
	channels := channelmgr.NewManager(db)

	past := time.Now().Add(-48 * time.Hour)
	_, _, err := channels.Upsert(context.Background(), channelmgr.UpsertParams{
		GroupID: groupID, EventID: "900", EventProvider: "espn", ChannelName: "Old Game",
		HomeTeam: "A", AwayTeam: "B", EventDate: past, League: "nfl", Sport: "football",
	})
	if err != nil {
		t.Fatalf("seed channel: %v", err)
	}

	lc := lifecycle.NewManager(lifecycle.CreateStreamAvailable, lifecycle.DeleteStreamRemoved, 3*time.Hour, nil, false, nil)
	order := ordering.NewService(nil, db)
	o := New(db, classify.New(classify.DefaultPatterns()), nil, nil, nil, lc, channels, order, &fakeStreamSource{}, nil, 5*time.Hour)

	group := domain.EventEPGGroup{ID: groupID, Name: "NFL"}
	result, err := o.ProcessGroup(context.Background(), group, nil, 1)
	if err != nil {
		t.Fatalf("ProcessGroup: %v", err)
	}
	if result.Deleted != 1 {
		t.Fatalf("expected the stream-less channel to be deleted, got %+v", result)
	}
}
