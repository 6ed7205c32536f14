package main

import (
	"context"
	"log"
	"os"

	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/customeros/mailpulse/config"
	"github.com/customeros/mailpulse/internal/database"
	"github.com/customeros/mailpulse/internal/repository"
	"github.com/customeros/mailpulse/server"
)

func main() {
	app := &cli.App{
		Name:  "mailpulse",
		Usage: "Gmail change notification sync and device push fan-out",
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Run database migrations",
				Action: migrate,
			},
			{
				Name:   "server",
				Usage:  "Start the application server",
				Action: serve,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setup() (*config.Config, *gorm.DB, error) {
	cfg, err := config.InitConfig()
	if err != nil {
		return nil, nil, cli.Exit("Config initialization failed: "+err.Error(), 1)
	}

	mailpulseDB, err := database.NewConnection(cfg.MailpulseDatabaseConfig)
	if err != nil {
		return nil, nil, cli.Exit("Mailpulse database initialization failed: "+err.Error(), 1)
	}

	return cfg, mailpulseDB, nil
}

func migrate(_ *cli.Context) error {
	cfg, mailpulseDB, err := setup()
	if err != nil {
		return err
	}

	if err = repository.MigrateMailpulseDB(cfg.MailpulseDatabaseConfig, mailpulseDB); err != nil {
		return cli.Exit("Database migration failed: "+err.Error(), 1)
	}
	log.Println("Database migration completed successfully")
	return nil
}

func serve(c *cli.Context) error {
	cfg, mailpulseDB, err := setup()
	if err != nil {
		return err
	}

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("Mailpulse starting up...")

	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}

	srv, err := server.NewServer(ctx, cfg, mailpulseDB)
	if err != nil {
		return cli.Exit("Server setup failed: "+err.Error(), 1)
	}

	if err = srv.Run(); err != nil {
		return cli.Exit("Server startup failed: "+err.Error(), 1)
	}

	log.Println("Shutdown complete")
	return nil
}
