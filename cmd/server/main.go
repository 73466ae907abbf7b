package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/centrid/go-identity-server/accounts"
	"github.com/centrid/go-identity-server/accounts/repofakes"
	"github.com/centrid/go-identity-server/apps"
	appfakes "github.com/centrid/go-identity-server/apps/repofakes"
	"github.com/centrid/go-identity-server/internal/config"
	"github.com/centrid/go-identity-server/oauth"
	"github.com/centrid/go-identity-server/server"
	"github.com/centrid/go-identity-server/session"
	"github.com/centrid/go-identity-server/store"
	"github.com/centrid/go-identity-server/store/memstore"
	"github.com/centrid/go-identity-server/store/redisstore"
	"github.com/centrid/go-identity-server/token"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Fatal().Err(err).Msg("error running server")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("config.New: %w", err)
	}
	setupLogging(cfg)
	displayAppname(cfg.AppName)

	keyPair, err := loadKeys(cfg)
	if err != nil {
		return fmt.Errorf("loadKeys: %w", err)
	}
	codec := token.NewCodec(keyPair)

	registry, ephemeral, cleanup, err := buildStorage(cfg)
	if err != nil {
		return fmt.Errorf("buildStorage: %w", err)
	}
	defer cleanup()

	sessions := session.NewManager(codec, registry, cfg.Issuer,
		session.WithDefaultTimeout(cfg.SessionTimeout))

	accountRepo, verifier, appRepo := buildRepos(cfg)

	flow := oauth.NewFlow(appRepo, accountRepo, codec, ephemeral, sessions, oauth.Config{
		Enabled:            cfg.OAuth.Enabled,
		AutoGranting:       cfg.OAuth.AutoGranting,
		Issuer:             cfg.Issuer,
		CodeTimeout:        cfg.OAuth.CodeTimeout,
		TransactionTimeout: cfg.OAuth.TransactionTimeout,
		AccessTokenTimeout: cfg.OAuth.AccessTokenTimeout,
	})

	httpServer := &http.Server{
		Addr:    cfg.Addr(),
		Handler: server.New(cfg, sessions, flow, accountRepo, verifier),
	}
	go listenAndServe(httpServer)
	waitForStopSignal()
	return shutdown(httpServer)
}

func setupLogging(cfg config.Config) {
	if cfg.Env == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func loadKeys(cfg config.Config) (*token.KeyPair, error) {
	if cfg.PrivateKeyPEM != "" {
		return token.LoadKeyPairFromPEM(cfg.PrivateKeyPEM)
	}
	log.Warn().Msg("no signing key configured, generating an ephemeral one; sessions will not survive a restart")
	return token.GenerateKeyPair(2048)
}

func buildStorage(cfg config.Config) (session.Registry, store.Ephemeral, func(), error) {
	if cfg.RedisAddr == "" {
		mem := memstore.New()
		return session.NewMemoryRegistry(), mem, func() { _ = mem.Close() }, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.RedisAddr},
		Password: cfg.RedisPassword,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	cleanup := func() { _ = client.Close() }
	return session.NewRedisRegistry(client), redisstore.New(client), cleanup, nil
}

// buildRepos wires the account and application repositories. Until a real
// directory backend is attached, DEV runs with seeded in-memory fixtures.
func buildRepos(cfg config.Config) (accounts.Repo, accounts.PasswordVerifier, apps.Repo) {
	accountRepo := repofakes.NewFakeAccountRepo()
	appRepo := appfakes.NewFakeAppRepo()

	if cfg.Env == "DEV" {
		accountRepo.Upsert(&accounts.Account{
			ID:         "supervisor",
			Name:       "Supervisor",
			Supervisor: true,
			Enabled:    true,
		})
		accountRepo.SetPassword("supervisor", "supervisor")
		appRepo.Upsert(&apps.Application{
			ID:      "demo",
			Code:    "demo",
			Secret:  "demo-secret",
			Name:    "Demo Application",
			URL:     "http://localhost:3000",
			Enabled: true,
		})
	}
	return accountRepo, accountRepo, appRepo
}

func listenAndServe(httpServer *http.Server) {
	log.Info().Str("addr", httpServer.Addr).Msg("server listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
