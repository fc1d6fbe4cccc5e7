package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/glukogo/authsvc/internal/config"
	"github.com/glukogo/authsvc/internal/logging"
	"github.com/glukogo/authsvc/internal/mail"
)

// newMailWorkerCmd drains the mail queue filled by `serve` when
// MAIL_DRIVER=queue and hands each message to a delivering driver.
func newMailWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mail-worker",
		Short: "Deliver queued verification emails.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			driver, _ := cmd.Flags().GetString("driver")
			if driver == mail.DriverQueue {
				return fmt.Errorf("mail-worker cannot deliver with the %q driver", driver)
			}

			log := logging.New(cfg.LogLevel).With(slog.String("component", "mail-worker"))
			sender, err := mail.NewSender(mail.Options{
				Driver:               driver,
				From:                 cfg.Mail.Sender,
				PostmarkServerToken:  cfg.Mail.PostmarkServerToken,
				PostmarkAccountToken: cfg.Mail.PostmarkAccountToken,
				DevDir:               cfg.Mail.DevDir,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			w := &mail.Worker{URL: cfg.Mail.RabbitURL, Queue: cfg.Mail.Queue, Sender: sender, Log: log}
			if err := w.Run(logging.IntoContext(ctx, log)); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			log.Info("mail worker stopped")
			return nil
		},
	}
	fs := cmd.Flags()
	fs.String("driver", mail.DriverPostmark, "delivering driver: postmark, dev or log (env: MAIL_WORKER_DRIVER)")
	fs.String("log-level", "info", "debug, info, warn or error (env: LOG_LEVEL)")
	bindEnv(cmd, map[string]string{"driver": "MAIL_WORKER_DRIVER", "log-level": "LOG_LEVEL"})
	return cmd
}
