package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"

	auth "github.com/nodalab/authd"
	"github.com/nodalab/authd/httpapi"
	"github.com/nodalab/authd/mailer"
	"github.com/nodalab/authd/social"
	"github.com/nodalab/authd/social/google"
)

func main() {
	cfg, err := auth.NewEnvConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	dsn := os.Getenv("AUTH_DB_DSN")
	if dsn == "" {
		dsn = "file:authd.db?cache=shared"
	}

	db, err := auth.OpenDB(dsn)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := auth.CreateSchema(ctx, db); err != nil {
		log.Fatalf("schema: %v", err)
	}

	auth.BcryptCost = cfg.GetBcryptCost()

	repo := auth.NewRepositoryManager(db)
	resolver := auth.NewResolver(repo)
	tokens := auth.NewTokenService(cfg, nil)
	sessions := auth.NewSessionCoordinator(repo, cfg)
	auther := auth.NewAuther(repo, resolver, tokens, sessions, cfg)
	registrar := auth.NewRegistrar(repo, resolver, auther, cfg)
	profiler := auth.NewProfiler(repo, resolver, cfg)

	if smtpCfg, err := mailer.NewConfig(); err == nil {
		notifier := mailer.New(smtpCfg)
		auther.WithNotifier(notifier)
		registrar.WithNotifier(notifier)
	} else {
		log.Printf("mail disabled: %v", err)
	}

	controller := httpapi.NewController(auther, registrar, profiler)

	if clientID := os.Getenv("GOOGLE_CLIENT_ID"); clientID != "" {
		provider := google.New(google.Config{
			ClientID:     clientID,
			ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
			CallbackURL:  os.Getenv("GOOGLE_CALLBACK_URL"),
		})

		state := social.NewEncryptedStateManager(
			[]byte(os.Getenv("AUTH_STATE_ENCRYPTION_KEY")),
			[]byte(os.Getenv("AUTH_STATE_HMAC_KEY")),
			10*time.Minute,
		)

		sessions.WithTokenRevoker(provider)
		controller.WithSocial(
			social.NewAuthenticator(repo, auther, state).WithProvider(provider),
		)
	}

	app := fiber.New(fiber.Config{
		AppName: "authd",
	})
	controller.RegisterRoutes(app, "/auth")

	addr := os.Getenv("AUTH_LISTEN_ADDR")
	if addr == "" {
		addr = ":9876"
	}

	if err := app.Listen(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
