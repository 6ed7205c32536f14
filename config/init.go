package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/customeros/mailpulse/internal/logger"
	"github.com/customeros/mailpulse/internal/tracing"
)

type Config struct {
	AppConfig               *AppConfig
	Logger                  *logger.Config
	Tracing                 *tracing.JaegerConfig
	MailpulseDatabaseConfig *MailpulseDatabaseConfig
	GoogleConfig            *GoogleConfig
	FirebaseConfig          *FirebaseConfig
	SyncConfig              *SyncConfig
}

func InitConfig() (*Config, error) {
	config := &Config{
		AppConfig:               &AppConfig{},
		Logger:                  &logger.Config{},
		Tracing:                 &tracing.JaegerConfig{},
		MailpulseDatabaseConfig: &MailpulseDatabaseConfig{},
		GoogleConfig:            &GoogleConfig{},
		FirebaseConfig:          &FirebaseConfig{},
		SyncConfig:              &SyncConfig{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		return nil, err
	}

	return config, nil
}
