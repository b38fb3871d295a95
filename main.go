package main

import (
	"context"
	"net/http"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"pharmacare/m/internal/api"
	"pharmacare/m/internal/assistant"
	"pharmacare/m/internal/config"
	"pharmacare/m/internal/database"
	"pharmacare/m/internal/identity"
	"pharmacare/m/internal/migrations"
	"pharmacare/m/internal/pharmacy"
	"pharmacare/m/internal/seed"
	"pharmacare/m/internal/store"
)

func main() {
	_ = godotenv.Load()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg := config.Load()
	db, err := database.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := migrations.Run(db); err != nil {
		log.Fatal("migrations failed", zap.Error(err))
	}

	st := store.New(db)
	ctx := context.Background()

	if cfg.CatalogCSV != "" {
		seed.LoadCatalog(ctx, st, cfg.CatalogCSV, log)
	}

	ph := pharmacy.New(st, log)
	if err := ph.Load(ctx); err != nil {
		log.Fatal("failed to load pharmacy state", zap.Error(err))
	}

	id := identity.New(st)
	ai := assistant.New(cfg.GeminiURL, cfg.GeminiAPIKey, log)

	handler := api.New(ph, id, ai, cfg.Secret, log)

	log.Info("PharmaCare server starting", zap.String("port", cfg.HTTPPort))
	if err := http.ListenAndServe(":"+cfg.HTTPPort, handler.Router()); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
