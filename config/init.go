package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	iconfig "github.com/customeros/mailvault/internal/config"
	"github.com/customeros/mailvault/internal/logger"
	"github.com/customeros/mailvault/internal/tracing"
)

func InitConfig() (*Config, error) {
	config := &Config{
		AppConfig:      &iconfig.AppConfig{},
		Logger:         &logger.Config{},
		Tracing:        &tracing.JaegerConfig{},
		DatabaseConfig: &iconfig.MailvaultDatabaseConfig{},
		GraphConfig:    &iconfig.GraphConfig{},
		ArchiveConfig:  &iconfig.ArchiveConfig{},
		R2Storage:      &iconfig.R2StorageConfig{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		log.Fatalf("Error loading mailvault config: %v", err)
	}

	return config, nil
}
