package config

import (
	iconfig "github.com/customeros/mailvault/internal/config"
	"github.com/customeros/mailvault/internal/logger"
	"github.com/customeros/mailvault/internal/tracing"
)

type Config struct {
	AppConfig      *iconfig.AppConfig
	Logger         *logger.Config
	Tracing        *tracing.JaegerConfig
	DatabaseConfig *iconfig.MailvaultDatabaseConfig
	GraphConfig    *iconfig.GraphConfig
	ArchiveConfig  *iconfig.ArchiveConfig
	R2Storage      *iconfig.R2StorageConfig
}
