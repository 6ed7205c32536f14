package config

import "time"

type AppConfig struct {
	APIPort                 string `env:"PORT,required" envDefault:"12222"`
	APIKey                  string `env:"API_KEY,required"`
	RabbitMQURL             string `env:"RABBITMQ_URL"`
	PubSubVerificationToken string `env:"PUBSUB_VERIFICATION_TOKEN"`
	// PubSubAsync acks pushes right away and processes them from the RabbitMQ queue
	PubSubAsync bool `env:"PUBSUB_ASYNC" envDefault:"false"`
}

type MailpulseDatabaseConfig struct {
	Host            string `env:"MAILPULSE_POSTGRES_HOST,required"`
	Port            string `env:"MAILPULSE_POSTGRES_PORT,required"`
	User            string `env:"MAILPULSE_POSTGRES_USER,required"`
	DBName          string `env:"MAILPULSE_POSTGRES_DB_NAME,required"`
	Password        string `env:"MAILPULSE_POSTGRES_PASSWORD,required"`
	MaxConn         int    `env:"MAILPULSE_POSTGRES_DB_MAX_CONN" envDefault:"50"`
	MaxIdleConn     int    `env:"MAILPULSE_POSTGRES_DB_MAX_IDLE_CONN" envDefault:"10"`
	ConnMaxLifetime int    `env:"MAILPULSE_POSTGRES_DB_CONN_MAX_LIFETIME" envDefault:"60"`
	LogLevel        string `env:"MAILPULSE_POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"MAILPULSE_POSTGRES_SSL_MODE" envDefault:"require"`
}

type GoogleConfig struct {
	ClientID       string        `env:"GOOGLE_OAUTH_CLIENT_ID"`
	ClientSecret   string        `env:"GOOGLE_OAUTH_CLIENT_SECRET"`
	PubSubTopic    string        `env:"GOOGLE_PUBSUB_TOPIC"`
	RequestTimeout time.Duration `env:"GMAIL_REQUEST_TIMEOUT" envDefault:"30s"`
}

type FirebaseConfig struct {
	ProjectID       string        `env:"FIREBASE_PROJECT_ID"`
	CredentialsFile string        `env:"FIREBASE_CREDENTIALS_FILE"`
	RequestTimeout  time.Duration `env:"FCM_REQUEST_TIMEOUT" envDefault:"10s"`
	// MaxConcurrentSends bounds parallel per-token sends inside one multicast
	MaxConcurrentSends int `env:"FCM_MAX_CONCURRENT_SENDS" envDefault:"10"`
}

type SyncConfig struct {
	LockMode string `env:"MAILBOX_LOCK_MODE" envDefault:"local"`
	// DispatchConcurrency bounds how many events of one run are pushed in parallel
	DispatchConcurrency int `env:"PUSH_DISPATCH_CONCURRENCY" envDefault:"4"`
}
