// Command teamarr runs the matching and lifecycle engine: it loads
// config and the settings snapshot, wires every SportsProvider adapter
// into a registry, builds the dispatcharr downstream client and the
// XMLTV guide writer, and then runs the scheduler and the HTTP/SSE
// surface side by side until signaled to stop.
//
// Grounded on cmd/plex-tuner/main.go's construction order (load config,
// open persistent state, build indices, wire dependents, start
// background loops, wait on signal) generalized from one fixed pipeline
// to this engine's settings-driven one.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/nreeb/teamarr/internal/config"
	"github.com/nreeb/teamarr/internal/dispatcharr"
	"github.com/nreeb/teamarr/internal/engine"
	"github.com/nreeb/teamarr/internal/orchestrator"
	"github.com/nreeb/teamarr/internal/provider"
	"github.com/nreeb/teamarr/internal/provider/cricbuzz"
	"github.com/nreeb/teamarr/internal/provider/espn"
	"github.com/nreeb/teamarr/internal/provider/hockeytech"
	"github.com/nreeb/teamarr/internal/reconcile"
	"github.com/nreeb/teamarr/internal/store"
	"github.com/nreeb/teamarr/internal/webapi"
	"github.com/nreeb/teamarr/internal/xmltv"
)

func main() {
	for _, p := range []string{".env", "../.env", "../../.env"} {
		_ = config.LoadEnvFile(p)
	}
	cfg := config.Load()

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer db.DB.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	leagues, err := engine.LoadLeagues(ctx, db)
	if err != nil {
		log.Fatalf("load leagues: %v", err)
	}

	providers := provider.NewRegistry()
	providers.Add(espn.New(leagues))
	providers.Add(hockeytech.New(leagues))
	providers.Add(cricbuzz.New(leagues))

	guide := xmltv.New(cfg.XMLTVPath)

	// streams/downstream/m3u stay nil interfaces (not a typed-nil
	// *dispatcharr.Client) when no downstream is configured, so Engine's
	// own "e.streams == nil" guards work rather than panicking on a nil
	// receiver.
	var (
		streams    orchestrator.StreamSource
		downstream reconcile.Downstream
		m3u        engine.M3URefresher
	)
	if cfg.DispatcharrURL != "" {
		client := dispatcharr.New(cfg.DispatcharrURL, cfg.DispatcharrUsername, cfg.DispatcharrPassword)
		streams, downstream, m3u = client, client, client
	}

	e, err := engine.New(ctx, cfg, db, providers, streams, guide, downstream, m3u)
	if err != nil {
		log.Fatalf("build engine: %v", err)
	}

	if result, err := e.StartupReconcile(ctx); err != nil {
		log.Printf("[MAIN] startup reconciliation failed: %v", err)
	} else if len(result.Issues) > 0 {
		log.Printf("[MAIN] startup reconciliation: %d issue(s), %d action(s) taken", len(result.Issues), result.ActionsTaken)
	}

	srv := webapi.New(cfg.HTTPAddr, e, e.Scheduler, cfg.DispatcharrURL)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		e.Scheduler.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := srv.Run(ctx); err != nil {
			log.Printf("[MAIN] web server: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	fmt.Println("shutting down")
	cancel()
	wg.Wait()
}
