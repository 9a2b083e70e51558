package config

type AppConfig struct {
	APIPort     string `env:"PORT,required" envDefault:"12222"`
	APIKey      string `env:"API_KEY,required"`
	RabbitMQURL string `env:"RABBITMQ_URL"`
}

type MailvaultDatabaseConfig struct {
	Host            string `env:"MAILVAULT_POSTGRES_HOST,required"`
	Port            string `env:"MAILVAULT_POSTGRES_PORT,required"`
	User            string `env:"MAILVAULT_POSTGRES_USER,required"`
	DBName          string `env:"MAILVAULT_POSTGRES_DB_NAME,required"`
	Password        string `env:"MAILVAULT_POSTGRES_PASSWORD,required"`
	MaxConn         int    `env:"MAILVAULT_POSTGRES_DB_MAX_CONN"`
	MaxIdleConn     int    `env:"MAILVAULT_POSTGRES_DB_MAX_IDLE_CONN"`
	ConnMaxLifetime int    `env:"MAILVAULT_POSTGRES_DB_CONN_MAX_LIFETIME"`
	LogLevel        string `env:"MAILVAULT_POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"MAILVAULT_POSTGRES_SSL_MODE"`
}

type GraphConfig struct {
	TenantID     string `env:"MSGRAPH_TENANT_ID"`
	ClientID     string `env:"MSGRAPH_CLIENT_ID"`
	ClientSecret string `env:"MSGRAPH_CLIENT_SECRET"`
	MailboxUPN   string `env:"MSGRAPH_MAILBOX_UPN"`
	BaseURL      string `env:"MSGRAPH_BASE_URL" envDefault:"https://graph.microsoft.com/v1.0"`
	PageSize     int    `env:"MSGRAPH_PAGE_SIZE" envDefault:"50"`
}

type ArchiveConfig struct {
	ArchiveRoot        string `env:"ARCHIVE_ROOT,required"`
	QuarantineRoot     string `env:"ARCHIVE_QUARANTINE_ROOT"`
	CheckpointInterval int    `env:"ARCHIVE_CHECKPOINT_INTERVAL" envDefault:"10"`
	Parallelism        int    `env:"ARCHIVE_PARALLELISM" envDefault:"4"`
	FallbackOverlapMin int    `env:"ARCHIVE_FALLBACK_OVERLAP_MINUTES" envDefault:"60"`
	DryRun             bool   `env:"ARCHIVE_DRY_RUN" envDefault:"false"`
}

type R2StorageConfig struct {
	AccountID       string `env:"CLOUDFLARE_R2_ACCOUNT_ID"`
	AccessKeyID     string `env:"CLOUDFLARE_R2_ACCESS_KEY_ID"`
	AccessKeySecret string `env:"CLOUDFLARE_R2_ACCESS_KEY_SECRET"`
	ArchiveBucket   string `env:"BUCKET_NAME_ARCHIVE" envDefault:"mail-archive"`
}
