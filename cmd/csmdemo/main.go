// cmd/csmdemo/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/rs/zerolog"

	csmkit "github.com/briangreenhill/csmkit"
	"github.com/briangreenhill/csmkit/autosave"
	"github.com/briangreenhill/csmkit/connectivity"
	"github.com/briangreenhill/csmkit/csm"
	"github.com/briangreenhill/csmkit/internal/config"
	"github.com/briangreenhill/csmkit/store"
)

// csmdemo walks the assessment pipeline end to end against an in-memory
// store: score a site visit, drop the connection mid-edit, and watch
// the offline queue drain on reconnect.
func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "help", "--help", "-h":
			fmt.Println("Usage: csmdemo")
			fmt.Println("Environment:")
			fmt.Println("  CSM_LOG_LEVEL       Log level (default info)")
			fmt.Println("  CSM_QUEUE_PATH      Offline queue directory (default in-memory)")
			fmt.Println("  CSM_AUTOSAVE_DELAY  Auto-save debounce, 2s-20s (default 2s)")
			fmt.Println("  CSM_API_BASE_URL    Document API backend (default in-memory store)")
			fmt.Println("  CSM_API_KEY         API key for the document API")
			return
		case "version", "--version", "-v":
			fmt.Println("csmdemo v0.1.0")
			return
		}
	}
	if err := run(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// Demo pacing: drain the queue quickly after reconnect.
	cfg.SyncInterval = 500 * time.Millisecond
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(cfg.Level())

	var remote store.DocumentStore
	if cfg.APIBaseURL != "" {
		remote, err = store.NewRESTStore(cfg.APIBaseURL, cfg.APIKey)
		if err != nil {
			return err
		}
		logger.Info().Str("url", cfg.APIBaseURL).Msg("using document API backend")
	} else {
		mem := store.NewMemStore()
		if err := seed(mem); err != nil {
			return err
		}
		remote = mem
	}

	signal := connectivity.NewManual(true)
	core, err := csmkit.New(csmkit.Options{
		Remote: remote,
		Config: cfg,
		Logger: logger,
		Signal: signal,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := core.Close(); err != nil {
			logger.Error().Err(err).Msg("close")
		}
	}()

	ctx := context.Background()
	svc := core.Service()

	vendors, err := svc.ListVendors(ctx)
	if err != nil {
		return err
	}
	fmt.Println("Registered vendors:")
	for _, v := range vendors {
		fmt.Printf("  %s  %s (%s)\n", v.VdCode, v.VdName, v.Category)
	}

	form, err := svc.GetForm(ctx, "F1")
	if err != nil {
		return err
	}

	a, err := svc.StartAssessment(ctx, vendors[0], form, "demo-inspector")
	if err != nil {
		return err
	}
	fmt.Printf("\nStarted assessment %s for %s\n", a.ID, a.VdName)

	sess := svc.NewSession(a, form, csm.SessionConfig{
		OnState: func(st autosave.State) {
			logger.Info().Str("state", st.String()).Msg("autosave")
		},
	})
	defer sess.Close()

	fmt.Println("\nScoring the site walk:")
	for _, e := range []struct {
		q     string
		score csm.Score
	}{
		{"q1", "4"},
		{"q2", csm.ScoreNA},
		{"q3", "5"},
	} {
		if err := sess.SetScore(e.q, e.score); err != nil {
			return err
		}
		fmt.Printf("  %s = %s\n", e.q, e.score)
	}
	if err := sess.SetComment("q3", "Tags current through October"); err != nil {
		return err
	}

	live := sess.Score()
	fmt.Printf("Live score: %.1f/%.1f (%.1f%%, risk %s)\n",
		live.TotalScore, live.MaxScore, live.AvgScore, live.RiskLevel)

	if err := waitFor(func() bool { return sess.SaveState() == autosave.StateSaved }); err != nil {
		return fmt.Errorf("waiting for auto-save: %w", err)
	}
	fmt.Println("Auto-save settled.")

	fmt.Println("\nDropping the connection and editing q2...")
	signal.Set(false)
	if err := sess.SetScore("q2", "3"); err != nil {
		return err
	}
	if err := sess.SaveNow(ctx); err != nil {
		return err
	}
	fmt.Printf("Writes pending sync: %d\n", core.Sync().PendingSync())

	fmt.Println("Reconnecting...")
	signal.Set(true)
	if err := waitFor(func() bool { return core.Sync().PendingSync() == 0 }); err != nil {
		return fmt.Errorf("waiting for queue drain: %w", err)
	}
	fmt.Println("Offline queue drained.")

	if err := sess.Finish(ctx); err != nil {
		return err
	}
	final := sess.Assessment()
	fmt.Printf("\nFinished assessment %s: %.1f%% (risk %s)\n", final.ID, final.AvgScore, final.RiskLevel)

	summaries, err := svc.Summaries(ctx)
	if err != nil {
		return err
	}
	fmt.Println("\nVendor summaries:")
	for _, s := range summaries {
		fmt.Printf("  %s  %-22s %6.1f%%  %-6s %s\n",
			s.VdCode, s.VdName, s.AvgScore, s.RiskLevel, s.LastAssessedAt.Format("2006-01-02"))
	}
	return nil
}

func seed(mem *store.MemStore) error {
	form := csm.ChecklistForm{
		FormID: "F1",
		Name:   "Site safety walk",
		Fields: []csm.FormField{
			{QuestionID: "q1", Label: "PPE worn on site", CkType: csm.CheckMandatory, Weight: 1},
			{QuestionID: "q2", Label: "Permits displayed", CkType: csm.CheckStandard, Weight: 1},
			{QuestionID: "q3", Label: "Scaffolding certified", CkType: csm.CheckStandard, Weight: 2},
		},
	}
	if err := mem.Seed(csm.CollectionForms, form.FormID, form); err != nil {
		return err
	}
	vendors := []csm.Vendor{
		{VdCode: "VD001", VdName: "Apex Scaffolding", Category: "scaffolding"},
		{VdCode: "VD002", VdName: "Borealis Electrical", Category: "electrical"},
	}
	for _, v := range vendors {
		if err := mem.Seed(csm.CollectionVendors, v.VdCode, v); err != nil {
			return err
		}
	}
	return nil
}

func waitFor(cond func() bool) error {
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return nil
		}
		time.Sleep(20 * time.Millisecond)
	}
	return fmt.Errorf("condition not met within 10s")
}
