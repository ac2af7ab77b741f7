package main

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/nexuscards/battle/internal/auth"
	"github.com/nexuscards/battle/internal/config"
	"github.com/nexuscards/battle/internal/database"
	"github.com/nexuscards/battle/internal/logger"
	"github.com/rs/zerolog/log"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	logger.Setup(cfg.Environment)
	if envErr != nil {
		log.Info().Msg("No .env file found, using environment variables")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	deviceID := os.Getenv("DEVICE_ID")
	if deviceID == "" {
		deviceID = uuid.NewString()
		log.Info().Str("device_id", deviceID).Msg("Generated device id")
	}

	label := os.Getenv("DEVICE_LABEL")
	if label == "" {
		label = "Console"
	}

	secret := os.Getenv("DEVICE_SECRET")
	if secret == "" {
		secret = "change-me-in-production"
		log.Warn().Msg("Using default device secret. Set DEVICE_SECRET in production!")
	}

	if err := auth.NewPostgresDevices(db).CreateDevice(ctx, deviceID, label, secret); err != nil {
		log.Fatal().Err(err).Msg("Failed to create device")
	}

	log.Info().
		Str("device_id", deviceID).
		Str("label", label).
		Msg("Device created/updated. Connect with X-Device-ID and X-Device-Secret headers")
}
