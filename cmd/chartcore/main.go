package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/chartcore/internal/config"
	"github.com/ehr/chartcore/internal/platform/client"
	"github.com/ehr/chartcore/internal/platform/snapshot"
	"github.com/ehr/chartcore/internal/platform/stubserver"
	"github.com/ehr/chartcore/internal/platform/telemetry"
	"github.com/ehr/chartcore/internal/store"
	"github.com/ehr/chartcore/internal/views"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "chartcore",
		Short: "Client-side chart data layer for a clinical record editor",
	}

	rootCmd.AddCommand(pullCmd())
	rootCmd.AddCommand(timelineCmd())
	rootCmd.AddCommand(topicsCmd())
	rootCmd.AddCommand(stubCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func pullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Pull a patient chart into the local snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, cfg, logger, err := loadChart(cmd.Context())
			if err != nil {
				return err
			}
			snap := s.SnapshotView()
			fmt.Printf("pulled %d resources for patient %s\n", snap.Len(), cfg.PatientID)

			db, err := snapshot.Open(cfg.SnapshotPath)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Save(cmd.Context(), s.ExportServer()); err != nil {
				return err
			}
			logger.Info().Str("path", cfg.SnapshotPath).Msg("snapshot written")
			return nil
		},
	}
}

func timelineCmd() *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Print the patient timeline grouped by date",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, logger, err := loadChart(cmd.Context())
			if err != nil {
				return err
			}
			s.SetSearchFilter(filter)
			snap := s.SnapshotView()
			items := views.BuildTimeline(snap, views.TimelineOptions{
				Filter: snap.SearchFilter,
				Hidden: snap.HiddenGroups,
			}, logger)
			for _, group := range views.GroupByDate(items) {
				fmt.Println(group.Date)
				for _, it := range group.Items {
					fmt.Printf("  [%s] %s (%s)\n", it.Kind, it.Title, it.Timestamp)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "free-text timeline filter")
	return cmd
}

func topicsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "topics",
		Short: "Print the aggregated chart topics",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, logger, err := loadChart(cmd.Context())
			if err != nil {
				return err
			}
			s.SynthesizeStandaloneTopics()
			for _, t := range views.LoadTopics(s.SnapshotView(), logger) {
				fmt.Printf("%s [%s] conditions=%d prescriptions=%d tasks=%d\n",
					t.Title, t.Status, len(t.Conditions), len(t.Prescriptions), len(t.Tasks))
			}
			return nil
		},
	}
}

func stubCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stub",
		Short: "Run a local stub FHIR server with a seeded sample chart",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger("info")
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			srv := stubserver.New()
			patientID := srv.SeedSampleChart()
			logger.Info().Str("port", cfg.StubPort).Str("patient", patientID).Msg("stub server listening")

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start(":" + cfg.StubPort) }()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case <-quit:
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}
}

// loadChart builds the store and populates it with the configured patient's
// chart: the patient itself plus the resource types the editor renders.
func loadChart(ctx context.Context) (*store.Store, *config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, zerolog.Nop(), err
	}
	logger := newLogger(cfg.LogLevel)
	if err := cfg.RequireBaseURL(); err != nil {
		return nil, nil, logger, err
	}
	if cfg.PatientID == "" {
		return nil, nil, logger, fmt.Errorf("PATIENT_ID is required")
	}

	remote := client.New(client.Config{
		BaseURL:    cfg.FHIRBaseURL,
		Token:      cfg.FHIRToken,
		HTTPClient: &http.Client{Timeout: cfg.HTTPTimeout},
		Logger:     logger,
	})

	opts := []store.Option{
		store.WithMetrics(telemetry.New(prometheus.DefaultRegisterer)),
	}
	if cfg.TrackingListID != "" {
		opts = append(opts, store.WithTrackingList("List/"+cfg.TrackingListID))
	}
	s := store.New(remote, logger, opts...)

	queries := []string{
		"Patient/" + cfg.PatientID,
		"Condition?patient=" + cfg.PatientID,
		"Encounter?patient=" + cfg.PatientID,
		"Observation?patient=" + cfg.PatientID,
		"Composition?patient=" + cfg.PatientID,
		"MedicationRequest?patient=" + cfg.PatientID,
		"MedicationAdministration?patient=" + cfg.PatientID,
		"List?patient=" + cfg.PatientID,
	}
	for _, q := range queries {
		if err := s.Query(ctx, q, store.QueryOptions{ShowLoadingScreen: true}); err != nil {
			logger.Warn().Err(err).Str("query", q).Msg("query failed, continuing")
		}
	}
	return s, cfg, logger, nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl).With().Timestamp().Logger()
}
