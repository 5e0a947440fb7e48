package main

import (
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/envelopeflow/backend/internal/ledger"
	"github.com/envelopeflow/backend/internal/models"
	"github.com/envelopeflow/backend/internal/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Log format can be explicitly set.
	// If it is not set, it defaults to JSON
	logFormat, ok := os.LookupEnv("LOG_FORMAT")
	output := io.Writer(os.Stdout)
	if ok && logFormat == "human" {
		output = zerolog.ConsoleWriter{Out: os.Stdout}
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if _, ok := os.LookupEnv("DEBUG"); ok {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(output).With().Timestamp().Logger()

	// Create data directory
	dataDir := filepath.Join(".", "data")
	err := os.MkdirAll(dataDir, os.ModePerm)
	if err != nil {
		log.Fatal().Msg(err.Error())
	}

	// Connect to the database
	err = models.Connect("data/gorm.db")
	if err != nil {
		log.Fatal().Msg(err.Error())
	}

	// How often due occurrences are posted and invariants verified
	interval := time.Hour
	if value, ok := os.LookupEnv("MAINTENANCE_INTERVAL"); ok {
		interval, err = time.ParseDuration(value)
		if err != nil {
			log.Fatal().Msgf("MAINTENANCE_INTERVAL is not a valid duration: %s", value)
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	maintain()
	for {
		select {
		case <-ticker.C:
			maintain()
		case sig := <-quit:
			log.Info().Msgf("received %s, shutting down", sig)
			return
		}
	}
}

// maintain posts due scheduled occurrences and verifies the balance
// invariants for every budget.
func maintain() {
	var budgets []models.Budget
	err := models.DB.Find(&budgets).Error
	if err != nil {
		log.Error().Err(err).Msg("loading budgets failed")
		return
	}

	today := types.Today()
	for _, budget := range budgets {
		posted, err := ledger.PostDueOccurrences(models.DB, budget.ID, today)
		if err != nil {
			log.Error().Err(err).Str("budget", budget.Name).Msg("posting due occurrences failed")
		}
		if len(posted) > 0 {
			log.Info().Str("budget", budget.Name).Int("transactions", len(posted)).Msg("posted due occurrences")
		}

		corrections, err := ledger.Recalculate(models.DB, budget.ID)
		if err != nil {
			log.Error().Err(err).Str("budget", budget.Name).Msg("recalculation failed")
		}
		for _, correction := range corrections {
			log.Warn().
				Str("budget", budget.Name).
				Str("envelope", correction.EnvelopeName).
				Int64("oldBalance", correction.OldBalance).
				Int64("newBalance", correction.NewBalance).
				Msg("corrected balance")
		}
	}
}
