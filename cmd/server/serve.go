package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/glukogo/authsvc/internal/avatar"
	"github.com/glukogo/authsvc/internal/config"
	"github.com/glukogo/authsvc/internal/database"
	"github.com/glukogo/authsvc/internal/handler"
	"github.com/glukogo/authsvc/internal/logging"
	"github.com/glukogo/authsvc/internal/mail"
	"github.com/glukogo/authsvc/internal/oauth"
	"github.com/glukogo/authsvc/internal/repository"
	"github.com/glukogo/authsvc/internal/router"
	"github.com/glukogo/authsvc/internal/service"
	"github.com/glukogo/authsvc/internal/utils"
	"github.com/glukogo/authsvc/internal/verification"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, config.Load())
		},
	}
	fs := cmd.Flags()
	fs.StringP("port", "p", "8080", "port to listen on (env: APP_PORT)")
	fs.StringP("env", "e", "dev", "application environment (env: APP_ENV)")
	fs.String("log-level", "info", "debug, info, warn or error (env: LOG_LEVEL)")
	bindEnv(cmd, map[string]string{"port": "APP_PORT", "env": "APP_ENV", "log-level": "LOG_LEVEL"})
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	log := logging.New(cfg.LogLevel).With(slog.String("env", cfg.Env))
	slog.SetDefault(log)
	ctx = logging.IntoContext(ctx, log)

	secrets := config.NewSecrets()
	tokens := utils.NewTokenIssuer(secrets.MustResolve(config.SecretJWT), cfg.TokenTTL)

	checks := map[string]handler.Check{}
	users, closeStore, err := openStore(ctx, cfg, checks)
	if err != nil {
		return err
	}
	defer closeStore()

	codes, closeCodes := openRegistry(ctx, cfg, checks)
	defer closeCodes()

	sender, err := mail.NewSender(mail.Options{
		Driver:               cfg.Mail.Driver,
		From:                 cfg.Mail.Sender,
		PostmarkServerToken:  cfg.Mail.PostmarkServerToken,
		PostmarkAccountToken: cfg.Mail.PostmarkAccountToken,
		RabbitURL:            cfg.Mail.RabbitURL,
		Queue:                cfg.Mail.Queue,
		DevDir:               cfg.Mail.DevDir,
	})
	if err != nil {
		return err
	}

	svc := service.NewAuthService(users, codes, sender, tokens, service.Options{
		AdminEmail:   cfg.AdminEmail,
		PioneerLimit: cfg.PioneerLimit,
		BcryptCost:   cfg.BcryptCost,
		CodeTTL:      cfg.CodeTTL,
	}).WithProviders(
		oauth.NewVK(oauth.Config{
			ClientID:    cfg.VKClientID,
			Secret:      secrets.Resolver(config.SecretVK),
			RedirectURI: cfg.OAuthRedirectURI,
			Timeout:     cfg.OAuthTimeout,
		}, oauth.Endpoints{}),
		oauth.NewYandex(oauth.Config{
			ClientID:    cfg.YandexClientID,
			Secret:      secrets.Resolver(config.SecretYandex),
			RedirectURI: cfg.OAuthRedirectURI,
			Timeout:     cfg.OAuthTimeout,
		}, oauth.Endpoints{}),
	)

	static, err := openAvatars(ctx, cfg, svc)
	if err != nil {
		return err
	}

	e := router.New(router.Deps{
		Log: log,
		Auth: handler.NewAuthHandler(svc, cfg.DistinctLoginErrors, handler.OAuthDelivery{
			AppHomeURL: cfg.AppHomeURL,
			AppOrigin:  cfg.AppOrigin,
		}),
		Users:   handler.NewUserHandler(svc),
		Admin:   handler.NewAdminHandler(svc),
		Tokens:  tokens,
		Lookup:  users,
		Checks:  checks,
		Avatars: static,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("listening", slog.String("addr", srv.Addr), slog.String("store", cfg.StoreDriver), slog.String("mail", cfg.Mail.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.Config, checks map[string]handler.Check) (repository.UserStore, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreMongo:
		db, err := database.OpenMongo(ctx, cfg.MongoURL, cfg.MongoDatabase, database.DefaultMongoOptions)
		if err != nil {
			return nil, nil, err
		}
		repo := repository.NewMongoUserRepo(db)
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, nil, fmt.Errorf("mongo indexes: %w", err)
		}
		checks["store"] = func(ctx context.Context) error { return db.Client().Ping(ctx, nil) }
		return repo, func() { _ = db.Client().Disconnect(context.Background()) }, nil

	case config.StoreMySQL:
		db, err := database.OpenMySQL(ctx, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			return nil, nil, err
		}
		repo := repository.NewMySQLUserRepo(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("mysql schema: %w", err)
		}
		checks["store"] = db.PingContext
		return repo, func() { _ = db.Close() }, nil
	}
	logging.FromContext(ctx).Warn("using in-memory user store; accounts are lost on restart")
	return repository.NewMemoryUserRepo(), func() {}, nil
}

// openRegistry prefers Redis so codes survive restarts and are shared
// between instances.
func openRegistry(ctx context.Context, cfg config.Config, checks map[string]handler.Check) (verification.Registry, func()) {
	if rdb := config.NewRedisClient(); rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		return verification.NewRedisRegistry(rdb, cfg.CodeTTL), func() { _ = rdb.Close() }
	}
	logging.FromContext(ctx).Info("redis unavailable, verification codes kept in memory")
	return verification.NewMemoryRegistry(cfg.CodeTTL), func() {}
}

func openAvatars(ctx context.Context, cfg config.Config, svc *service.AuthService) (router.StaticDir, error) {
	a := cfg.Avatar
	switch a.Driver {
	case "s3":
		store, err := avatar.NewS3Store(ctx, avatar.S3Config{
			Bucket:    a.S3Bucket,
			Region:    a.S3Region,
			Endpoint:  a.S3Endpoint,
			AccessKey: a.S3AccessKey,
			SecretKey: a.S3SecretKey,
			PathStyle: a.S3PathStyle,
			PublicURL: a.S3PublicURL,
		})
		if err != nil {
			return router.StaticDir{}, err
		}
		svc.WithAvatars(avatar.NewFetcher(store, a.MaxBytes, a.DownloadTimeout))
	case "local":
		svc.WithAvatars(avatar.NewFetcher(avatar.LocalStore{Dir: a.Dir, BaseURL: a.BaseURL}, a.MaxBytes, a.DownloadTimeout))
		return router.StaticDir{Prefix: a.BaseURL, Dir: a.Dir}, nil
	case "none", "":
	default:
		return router.StaticDir{}, fmt.Errorf("unknown AVATAR_DRIVER: %q", a.Driver)
	}
	return router.StaticDir{}, nil
}
