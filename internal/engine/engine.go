// Package engine wires every earlier component into one running
// process: it loads the settings snapshot and every in-memory index
// (leagues, team cache, detection patterns, ordering rules, exception
// keywords) from the store, builds C6-C15's collaborators, and exposes
// the handful of entry points internal/scheduler drives each tick.
//
// Grounded on cmd/plex-tuner/main.go's construction order (open store,
// build indices, wire dependents, start background loops) generalized
// from one fixed dependency graph to this engine's settings-driven one.
package engine

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/nreeb/teamarr/internal/channelmgr"
	"github.com/nreeb/teamarr/internal/classify"
	"github.com/nreeb/teamarr/internal/config"
	"github.com/nreeb/teamarr/internal/domain"
	"github.com/nreeb/teamarr/internal/fingerprint"
	"github.com/nreeb/teamarr/internal/leaguemap"
	"github.com/nreeb/teamarr/internal/lifecycle"
	"github.com/nreeb/teamarr/internal/matcher"
	"github.com/nreeb/teamarr/internal/metrics"
	"github.com/nreeb/teamarr/internal/normalize"
	"github.com/nreeb/teamarr/internal/ordering"
	"github.com/nreeb/teamarr/internal/orchestrator"
	"github.com/nreeb/teamarr/internal/provider"
	"github.com/nreeb/teamarr/internal/reconcile"
	"github.com/nreeb/teamarr/internal/scheduler"
	"github.com/nreeb/teamarr/internal/store"
	"github.com/nreeb/teamarr/internal/streamfilter"
	"github.com/nreeb/teamarr/internal/teamcache"
)

// M3URefresher is the narrow downstream capability RunEPGGeneration's
// scheduler hook needs: pull fresh stream lists from the M3U accounts
// before matching runs. Declared locally for the same reason
// orchestrator.StreamSource and reconcile.Downstream are — Engine never
// imports a concrete downstream package.
type M3URefresher interface {
	RefreshM3UAccounts(ctx context.Context) error
}

// Engine owns every long-lived collaborator built from one Settings
// snapshot plus the store it all reads/writes.
type Engine struct {
	Cfg      *config.Config
	DB       *store.Store
	Settings Settings

	Leagues     *leaguemap.Source
	Providers   *provider.Registry
	Teams       *teamcache.Index
	Refresher   *teamcache.Refresher
	Classifier  *classify.Classifier
	Fingerprint *fingerprint.Cache
	Fuzzy       *matcher.Matcher
	Lifecycle   *lifecycle.Manager
	Channels    *channelmgr.Manager
	Ordering    *ordering.Service
	TeamMatcher *matcher.TeamMatcher
	CardMatcher *matcher.CardMatcher
	Orchestrator *orchestrator.Orchestrator
	Reconciler  *reconcile.Reconciler
	Scheduler   *scheduler.Scheduler

	streams    orchestrator.StreamSource
	programmes orchestrator.ProgrammeSink
	downstream reconcile.Downstream
	m3u        M3URefresher
	keywords   []domain.ExceptionKeyword
}

// New builds a fully wired Engine. streams/programmes/downstream/m3u are
// the concrete downstream adapters (internal/dispatcharr, internal/xmltv)
// assembled by cmd/; any of programmes, downstream, and m3u may be nil
// during partial wiring (e.g. a dry-run engine with no XMLTV output).
func New(ctx context.Context, cfg *config.Config, db *store.Store, providers *provider.Registry, streams orchestrator.StreamSource, programmes orchestrator.ProgrammeSink, downstream reconcile.Downstream, m3u M3URefresher) (*Engine, error) {
	settings, err := loadSettings(ctx, db, cfg)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	leagues, err := LoadLeagues(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("load leagues: %w", err)
	}

	teams := teamcache.NewIndex(db)
	if err := teams.Load(ctx); err != nil {
		return nil, fmt.Errorf("load team cache: %w", err)
	}

	patterns, err := loadPatterns(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("load detection keywords: %w", err)
	}
	classifier := classify.New(patterns)

	keywords, err := loadExceptionKeywords(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("load exception keywords: %w", err)
	}

	rules, err := loadOrderingRules(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("load ordering rules: %w", err)
	}

	fpCache := fingerprint.NewCache(db)
	lc := lifecycle.NewManager(settings.LifecycleCreateTiming, settings.LifecycleDeleteTiming,
		settings.DurationDefault, settings.SportDurations, settings.EPGIncludeFinalEvents, settings.Location())
	channels := channelmgr.NewManager(db)
	order := ordering.NewService(rules, db)
	teamMatcher := matcher.NewTeamMatcher(teams, providers, fpCache)
	cardMatcher := matcher.NewCardMatcher(providers, fpCache)

	orch := orchestrator.New(db, classifier, leagues, teamMatcher, cardMatcher, lc, channels, order,
		streams, programmes, settings.SportDurations["mma"])
	orch.ChannelNameTemplate = settings.ChannelNameTemplate

	var reconciler *reconcile.Reconciler
	if downstream != nil {
		reconciler = reconcile.NewReconciler(db, channels, downstream, reconcile.Options{
			AutoFixOrphanEngine:     settings.AutoFixOrphanEngine,
			AutoFixOrphanDownstream: settings.AutoFixOrphanDownstream,
			AutoFixDuplicates:       settings.AutoFixDuplicates,
			TVGIDPrefix:             "teamarr-",
		})
	}

	e := &Engine{
		Cfg: cfg, DB: db, Settings: settings,
		Leagues: leagues, Providers: providers, Teams: teams,
		Refresher:   teamcache.NewRefresher(db, providers, cfg.SeedDataDir),
		Classifier:  classifier,
		Fingerprint: fpCache,
		Fuzzy:       matcher.NewMatcher(),
		Lifecycle:   lc,
		Channels:    channels,
		Ordering:    order,
		TeamMatcher: teamMatcher,
		CardMatcher: cardMatcher,
		Orchestrator: orch,
		Reconciler:  reconciler,
		streams:     streams,
		programmes:  programmes,
		downstream:  downstream,
		m3u:         m3u,
		keywords:    keywords,
	}

	e.Scheduler = scheduler.New(scheduler.Config{
		TickInterval:          time.Duration(settings.SchedulerIntervalMinutes) * time.Minute,
		RefreshM3U:            e.refreshM3U,
		RunEPGGeneration:      e.RunEPGGeneration,
		RunScheduledDeletions: e.RunScheduledDeletions,
		RunReconciliation:     e.RunReconciliation,
		CleanupHistory:        e.CleanupHistory,
	}, db)

	return e, nil
}

// Reload re-reads the settings table and every index derived from it.
// Call after the web surface writes a settings/leagues/keywords change;
// Engine never polls for changes on its own.
func (e *Engine) Reload(ctx context.Context) error {
	fresh, err := New(ctx, e.Cfg, e.DB, e.Providers, e.streams, e.programmes, e.downstream, e.m3u)
	if err != nil {
		return err
	}
	*e = *fresh
	return nil
}

func (e *Engine) refreshM3U(ctx context.Context) error {
	if e.m3u == nil {
		return nil
	}
	return e.m3u.RefreshM3UAccounts(ctx)
}

// RunEPGGeneration is spec.md §4.13 step 2: process every enabled
// top-level event_epg_group through the orchestrator, then route every
// enabled child group's matched streams to their parent's channels, and
// finally sync every enabled regular_tv_group as a 1:1 passthrough.
func (e *Engine) RunEPGGeneration(ctx context.Context, generation int64) error {
	groups, err := loadEventEPGGroups(ctx, e.DB)
	if err != nil {
		return fmt.Errorf("load event epg groups: %w", err)
	}

	var topLevel, children []domain.EventEPGGroup
	for _, g := range groups {
		if !g.Enabled {
			continue
		}
		if g.IsChild() {
			children = append(children, g)
		} else {
			topLevel = append(topLevel, g)
		}
	}

	for _, g := range topLevel {
		if _, err := e.Orchestrator.ProcessGroup(ctx, g, e.keywords, generation); err != nil {
			log.Printf("[ENGINE] group %d (%s) failed: %v", g.ID, g.Name, err)
		}
	}

	for _, g := range children {
		if err := e.processChildGroup(ctx, g, generation); err != nil {
			log.Printf("[ENGINE] child group %d (%s) failed: %v", g.ID, g.Name, err)
		}
	}

	tvGroups, err := loadRegularTVGroups(ctx, e.DB)
	if err != nil {
		return fmt.Errorf("load regular tv groups: %w", err)
	}
	for _, g := range tvGroups {
		if !g.Enabled {
			continue
		}
		if err := e.syncRegularTVGroup(ctx, g); err != nil {
			log.Printf("[ENGINE] regular tv group %d (%s) failed: %v", g.ID, g.Name, err)
		}
	}

	if e.Settings.ReconcileOnEPGGeneration && e.Reconciler != nil {
		if result, err := e.Reconciler.Reconcile(ctx, false); err != nil {
			log.Printf("[ENGINE] post-generation reconciliation failed: %v", err)
		} else {
			metrics.RecordReconcileIssues(result.Summary)
		}
	}

	if count, err := e.countManagedChannels(ctx); err != nil {
		log.Printf("[ENGINE] managed channel count failed: %v", err)
	} else {
		metrics.SetChannelsManaged(count)
	}

	if evicted, err := e.Fingerprint.EvictStale(ctx, generation); err != nil {
		log.Printf("[ENGINE] fingerprint cache eviction failed: %v", err)
	} else if evicted > 0 {
		log.Printf("[ENGINE] evicted %d stale fingerprint cache entries", evicted)
	}

	if flusher, ok := e.programmes.(interface{ Flush(context.Context) error }); ok {
		if err := flusher.Flush(ctx); err != nil {
			log.Printf("[ENGINE] programme sink flush failed: %v", err)
		}
	}

	return nil
}

// processChildGroup runs C9/C1/C2/C6-C7 (no UFC expansion, no lifecycle
// create/delete decision — children never own a channel) and attaches
// every match to the parent's existing channel via
// channelmgr.ProcessChildStreams.
func (e *Engine) processChildGroup(ctx context.Context, group domain.EventEPGGroup, generation int64) error {
	if e.streams == nil {
		return nil
	}
	raw, err := e.streams.ListRawStreams(ctx, group)
	if err != nil {
		return fmt.Errorf("list streams for child group %d: %w", group.ID, err)
	}
	filter := streamfilter.NewFilter(group.IncludeRegex, group.ExcludeRegex, group.TeamExtractRegex, group.SkipBuiltinExtractor)
	filtered := filter.Apply(raw)

	var matched []channelmgr.MatchedChildStream
	for _, rs := range filtered.Passed {
		ns := normalize.Normalize(rs.Name)
		cs := e.Classifier.Classify(ns)
		targetDate := time.Now().UTC()
		if ns.ExtractedDate != nil {
			targetDate = *ns.ExtractedDate
		}

		var outcome matcher.MatchOutcome
		switch cs.Category {
		case domain.CategoryTeamVsTeam:
			outcome = e.TeamMatcher.Match(ctx, cs, group.ID, targetDate, generation)
		case domain.CategoryEventCard:
			candidates := e.Leagues.ForCode(cs.LeagueHint)
			if len(candidates) == 0 {
				for _, code := range group.Leagues {
					candidates = append(candidates, e.Leagues.ForCode(code)...)
				}
			}
			for _, cand := range candidates {
				o := e.CardMatcher.Match(ctx, cs, group.ID, cand.LeagueCode, cand.Provider, targetDate, generation)
				if o.Kind == matcher.OutcomeMatched {
					outcome = o
					break
				}
			}
		default:
			continue
		}
		metrics.RecordMatchOutcome(group.Name, string(outcome.Kind))
		if outcome.Kind != matcher.OutcomeMatched {
			continue
		}

		matched = append(matched, channelmgr.MatchedChildStream{
			DownstreamStreamID: rs.ID, StreamName: rs.Name, M3UAccountID: group.M3UAccountID,
			M3UAccountName: rs.M3UAccountName, EventID: outcome.Event.EventID, EventProvider: outcome.Event.Provider,
		})
	}

	if len(matched) == 0 {
		return nil
	}
	parentID := *group.ParentGroupID
	result := e.Channels.ProcessChildStreams(ctx, group.ID, group.Name, parentID, matched, e.keywords)
	if len(result.Errors) > 0 {
		log.Printf("[ENGINE] child group %d: %d attach errors: %v", group.ID, len(result.Errors), result.Errors)
	}
	return nil
}

// syncRegularTVGroup keeps one managed_channels row per passthrough
// stream, skipping C1-C11 matching entirely (spec.md's RegularTVGroup
// expansion): a stream's own downstream id stands in for the
// event/provider key pair managed_channels otherwise uses for sports
// events.
func (e *Engine) syncRegularTVGroup(ctx context.Context, group domain.RegularTVGroup) error {
	if e.streams == nil {
		return nil
	}
	epgGroup := domain.EventEPGGroup{ID: group.ID, Name: group.Name, M3UAccountID: group.M3UAccountID, M3UGroupID: group.M3UGroupID}
	raw, err := e.streams.ListRawStreams(ctx, epgGroup)
	if err != nil {
		return fmt.Errorf("list streams for regular tv group %d: %w", group.ID, err)
	}

	seen := make(map[string]bool, len(raw))
	for _, rs := range raw {
		eventID := fmt.Sprintf("stream-%d", rs.ID)
		seen[eventID] = true
		ch, _, err := e.Channels.Upsert(ctx, channelmgr.UpsertParams{
			GroupID: group.ID, EventID: eventID, EventProvider: "regular_tv", ChannelName: rs.Name,
			EventDate: time.Now().UTC(),
		})
		if err != nil {
			log.Printf("[ENGINE] regular tv upsert failed for stream %q: %v", rs.Name, err)
			continue
		}
		exists, err := e.Channels.StreamExistsOnChannel(ctx, ch.ID, rs.ID)
		if err != nil || exists {
			continue
		}
		if _, err := e.Channels.AddStreamToChannel(ctx, channelmgr.AddStreamParams{
			ManagedChannelID: ch.ID, DownstreamStreamID: rs.ID, StreamName: rs.Name, Priority: 1,
			SourceGroupID: group.ID, SourceGroupType: domain.SourceMain, M3UAccountID: group.M3UAccountID, M3UAccountName: rs.M3UAccountName,
		}); err != nil {
			log.Printf("[ENGINE] regular tv attach failed for stream %q: %v", rs.Name, err)
		}
	}

	rows, err := e.DB.DB.QueryContext(ctx, `SELECT id, event_id FROM managed_channels WHERE group_id = ? AND deleted_at IS NULL AND event_provider = 'regular_tv'`, group.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	var toDelete []struct {
		id      int64
		eventID string
	}
	for rows.Next() {
		var r struct {
			id      int64
			eventID string
		}
		if err := rows.Scan(&r.id, &r.eventID); err != nil {
			return err
		}
		toDelete = append(toDelete, r)
	}
	for _, r := range toDelete {
		if !seen[r.eventID] {
			if err := e.Channels.SoftDelete(ctx, r.id, "stream no longer present"); err != nil {
				log.Printf("[ENGINE] regular tv delete failed for channel %d: %v", r.id, err)
			}
		}
	}
	return nil
}

// RunScheduledDeletions sweeps channels whose scheduled_delete_at has
// passed, independent of whether their group is still enabled (spec.md
// §4.13 step 3 — a disabled/deleted group's channels must still get
// cleaned up on schedule).
func (e *Engine) RunScheduledDeletions(ctx context.Context) error {
	now := time.Now().UTC().Format(time.RFC3339)
	rows, err := e.DB.DB.QueryContext(ctx, `SELECT id FROM managed_channels
		WHERE deleted_at IS NULL AND scheduled_delete_at IS NOT NULL AND scheduled_delete_at <= ?`, now)
	if err != nil {
		return err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err
		}
		ids = append(ids, id)
	}
	for _, id := range ids {
		if err := e.Channels.SoftDelete(ctx, id, "scheduled delete time reached"); err != nil {
			log.Printf("[ENGINE] scheduled delete failed for channel %d: %v", id, err)
		}
	}
	return nil
}

// RunReconciliation runs C13 in detect-only mode, matching spec.md
// §4.13's "light reconciliation" scheduler step; StartupReconcile is
// the equivalent autoFix-aware entry point cmd/ calls once at boot when
// ReconcileOnStartup is set.
func (e *Engine) RunReconciliation(ctx context.Context) (reconcile.Result, error) {
	if e.Reconciler == nil {
		return reconcile.Result{}, nil
	}
	result, err := e.Reconciler.Reconcile(ctx, false)
	if err == nil {
		metrics.RecordReconcileIssues(result.Summary)
	}
	return result, err
}

// countManagedChannels feeds the teamarr_managed_channels gauge.
func (e *Engine) countManagedChannels(ctx context.Context) (int, error) {
	var n int
	err := e.DB.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM managed_channels WHERE deleted_at IS NULL`).Scan(&n)
	return n, err
}

// StartupReconcile runs C13 with auto-fix enabled per the engine's
// Options, gated on Settings.ReconcileOnStartup.
func (e *Engine) StartupReconcile(ctx context.Context) (reconcile.Result, error) {
	if e.Reconciler == nil || !e.Settings.ReconcileOnStartup {
		return reconcile.Result{}, nil
	}
	return e.Reconciler.Reconcile(ctx, true)
}

// CleanupHistory prunes managed_channel_history rows older than
// ChannelHistoryRetentionDays.
func (e *Engine) CleanupHistory(ctx context.Context) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -e.Settings.ChannelHistoryRetentionDays).Format(time.RFC3339)
	_, err := e.DB.DB.ExecContext(ctx, `DELETE FROM managed_channel_history WHERE created_at < ?`, cutoff)
	return err
}

// LoadLeagues reads the `leagues` table and builds a leaguemap.Source from
// it. Exported so cmd/ can build the same index cmd/ needs to construct the
// SportsProvider adapters (internal/provider/espn et al. each take a
// *leaguemap.Source) before Engine exists to hand one out — Engine builds
// its own copy internally at New/Reload time rather than accepting this one
// as a parameter, since a settings reload must re-read leagues too.
func LoadLeagues(ctx context.Context, db *store.Store) (*leaguemap.Source, error) {
	rows, err := loadLeagueMappings(ctx, db)
	if err != nil {
		return nil, err
	}
	leagues, loadErrs := leaguemap.Load(rows)
	for _, e := range loadErrs {
		log.Printf("[ENGINE] league mapping rejected: %v", e)
	}
	return leagues, nil
}

func loadLeagueMappings(ctx context.Context, db *store.Store) ([]domain.LeagueMapping, error) {
	rows, err := db.DB.QueryContext(ctx, `SELECT league_code, provider, provider_league_id, sport, display_name,
		COALESCE(league_alias, ''), COALESCE(fallback_provider, ''), COALESCE(fallback_league_id, ''), enabled FROM leagues`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.LeagueMapping
	for rows.Next() {
		var m domain.LeagueMapping
		var enabled int
		if err := rows.Scan(&m.LeagueCode, &m.Provider, &m.ProviderLeagueID, &m.Sport, &m.DisplayName,
			&m.LeagueAlias, &m.FallbackProvider, &m.FallbackLeagueID, &enabled); err != nil {
			return nil, err
		}
		m.Enabled = enabled != 0
		out = append(out, m)
	}
	return out, rows.Err()
}

func loadExceptionKeywords(ctx context.Context, db *store.Store) ([]domain.ExceptionKeyword, error) {
	rows, err := db.DB.QueryContext(ctx, `SELECT id, label, match_terms, behavior, enabled FROM consolidation_exception_keywords`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.ExceptionKeyword
	for rows.Next() {
		var k domain.ExceptionKeyword
		var terms, behavior string
		var enabled int
		if err := rows.Scan(&k.ID, &k.Label, &terms, &behavior, &enabled); err != nil {
			return nil, err
		}
		k.MatchTerms = splitNonEmpty(terms, ",")
		k.Behavior = domain.ExceptionBehavior(behavior)
		k.Enabled = enabled != 0
		out = append(out, k)
	}
	return out, rows.Err()
}

func loadOrderingRules(ctx context.Context, db *store.Store) ([]domain.StreamOrderingRule, error) {
	rows, err := db.DB.QueryContext(ctx, `SELECT id, type, value, priority FROM channel_sort_priorities ORDER BY priority ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.StreamOrderingRule
	for rows.Next() {
		var r domain.StreamOrderingRule
		var typ string
		if err := rows.Scan(&r.ID, &typ, &r.Value, &r.Priority); err != nil {
			return nil, err
		}
		r.Type = domain.StreamOrderingRuleType(typ)
		out = append(out, r)
	}
	return out, rows.Err()
}

func loadEventEPGGroups(ctx context.Context, db *store.Store) ([]domain.EventEPGGroup, error) {
	rows, err := db.DB.QueryContext(ctx, `SELECT id, name, m3u_account_id, m3u_group_id, leagues, parent_group_id,
		channel_assignment_mode, channel_start_number, total_stream_count, sort_order, overlap_handling,
		duplicate_mode, include_regex, exclude_regex, team_extract_regex, skip_builtin_extractor, enabled
		FROM event_epg_groups`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.EventEPGGroup
	for rows.Next() {
		var g domain.EventEPGGroup
		var leaguesCSV, assignMode, duplicateMode string
		var parentID *int64
		var channelStart *int
		var skipBuiltin, enabled int
		if err := rows.Scan(&g.ID, &g.Name, &g.M3UAccountID, &g.M3UGroupID, &leaguesCSV, &parentID,
			&assignMode, &channelStart, &g.TotalStreamCount, &g.SortOrder, &g.OverlapHandling,
			&duplicateMode, &g.IncludeRegex, &g.ExcludeRegex, &g.TeamExtractRegex, &skipBuiltin, &enabled); err != nil {
			return nil, err
		}
		g.Leagues = splitNonEmpty(leaguesCSV, ",")
		g.ParentGroupID = parentID
		g.ChannelAssignment = domain.ChannelAssignmentMode(assignMode)
		g.ChannelStartNumber = channelStart
		g.DuplicateMode = domain.DuplicateMode(duplicateMode)
		g.SkipBuiltinExtractor = skipBuiltin != 0
		g.Enabled = enabled != 0
		out = append(out, g)
	}
	return out, rows.Err()
}

func loadRegularTVGroups(ctx context.Context, db *store.Store) ([]domain.RegularTVGroup, error) {
	rows, err := db.DB.QueryContext(ctx, `SELECT id, name, m3u_account_id, m3u_group_id, enabled FROM regular_tv_groups`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.RegularTVGroup
	for rows.Next() {
		var g domain.RegularTVGroup
		var enabled int
		if err := rows.Scan(&g.ID, &g.Name, &g.M3UAccountID, &g.M3UGroupID, &enabled); err != nil {
			return nil, err
		}
		g.Enabled = enabled != 0
		out = append(out, g)
	}
	return out, rows.Err()
}

// loadPatterns builds a classify.Patterns set from detection_keywords,
// falling back to classify.DefaultPatterns() wholesale when the table
// has no rows yet (first run before anyone has edited detection rules).
func loadPatterns(ctx context.Context, db *store.Store) (classify.Patterns, error) {
	rows, err := db.DB.QueryContext(ctx, `SELECT category, pattern, value FROM detection_keywords WHERE enabled = 1`)
	if err != nil {
		return classify.Patterns{}, err
	}
	defer rows.Close()

	var all []detectionRow
	for rows.Next() {
		var k detectionRow
		if err := rows.Scan(&k.category, &k.pattern, &k.value); err != nil {
			return classify.Patterns{}, err
		}
		all = append(all, k)
	}
	if err := rows.Err(); err != nil {
		return classify.Patterns{}, err
	}
	if len(all) == 0 {
		return classify.DefaultPatterns(), nil
	}

	p := classify.DefaultPatterns()
	byCategory := make(map[string][]detectionRow)
	for _, k := range all {
		byCategory[k.category] = append(byCategory[k.category], k)
	}

	if rows, ok := byCategory["placeholder"]; ok {
		if compiled := compileRows(rows); len(compiled) > 0 {
			p.Placeholder = compiled
		}
	}
	if rows, ok := byCategory["combat_keyword"]; ok {
		if compiled := compileRows(rows); len(compiled) > 0 {
			p.CombatKeyword = compiled
		}
	}
	if rows, ok := byCategory["combat_exclusion"]; ok {
		if compiled := compileRows(rows); len(compiled) > 0 {
			p.CombatExclusion = compiled
		}
	}
	if rows, ok := byCategory["league"]; ok {
		var leagues []classify.LeaguePattern
		for _, r := range rows {
			sport, codes, found := strings.Cut(r.value, ":")
			if !found {
				continue
			}
			re, err := regexp.Compile(r.pattern)
			if err != nil {
				log.Printf("[ENGINE] invalid league detection pattern %q: %v", r.pattern, err)
				continue
			}
			leagues = append(leagues, classify.LeaguePattern{Pattern: re, Leagues: splitNonEmpty(codes, ","), Sport: sport})
		}
		if len(leagues) > 0 {
			p.Leagues = leagues
		}
	}
	if rows, ok := byCategory["separator"]; ok {
		if compiled := compileRows(rows); len(compiled) > 0 {
			p.Separators = compiled
		}
	}
	if rows, ok := byCategory["card_segment"]; ok {
		var seg []classify.CardSegmentPattern
		for _, r := range rows {
			re, err := regexp.Compile(r.pattern)
			if err != nil {
				log.Printf("[ENGINE] invalid card segment detection pattern %q: %v", r.pattern, err)
				continue
			}
			seg = append(seg, classify.CardSegmentPattern{Segment: domain.CardSegment(r.value), Pattern: re})
		}
		// Rows come back in arbitrary DB order; re-sort to the fixed
		// most-specific-first priority so detectCardSegment's first-match
		// loop stays deterministic regardless of row order. Segments not
		// in the priority table (future custom values) sort last, in the
		// order the DB returned them.
		sort.SliceStable(seg, func(i, j int) bool {
			return cardSegmentPriority(seg[i].Segment) < cardSegmentPriority(seg[j].Segment)
		})
		if len(seg) > 0 {
			p.CardSegment = seg
		}
	}

	return p, nil
}

// cardSegmentPriority ranks segments most-specific first so "Early
// Prelims" text, which matches both early_prelims and the broader
// prelims pattern, resolves to early_prelims. Unknown segments sort last.
func cardSegmentPriority(seg domain.CardSegment) int {
	switch seg {
	case domain.SegmentEarlyPrelims:
		return 0
	case domain.SegmentPrelims:
		return 1
	case domain.SegmentMainCard:
		return 2
	case domain.SegmentCombined:
		return 3
	default:
		return 4
	}
}

// compileRows compiles every row's pattern, skipping (and logging) any
// that fail rather than rejecting the whole category — matching the
// "log-and-never-match" idiom internal/ordering.getCompiledRegex and
// internal/streamfilter.compilePattern both use for user-edited regex.
// detectionRow is one detection_keywords row.
type detectionRow struct{ category, pattern, value string }

func compileRows(rows []detectionRow) []*regexp.Regexp {
	var out []*regexp.Regexp
	for _, r := range rows {
		re, err := regexp.Compile(r.pattern)
		if err != nil {
			log.Printf("[ENGINE] invalid detection pattern %q: %v", r.pattern, err)
			continue
		}
		out = append(out, re)
	}
	return out
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
