package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/beacon/internal/devserver"
	"github.com/luma/beacon/internal/env"
)

var (
	devHost     string
	devHTTPPort string
	devTCPPort  int
	devUser     string
	devKey      string
)

func init() {
	flags := DevserverCmd.PersistentFlags()

	flags.StringVarP(&devHost, "host", "a", "0.0.0.0", "The host to listen on")
	flags.StringVar(&devHTTPPort, "http-port", "7362", "The port to listen to HTTP requests on")
	flags.IntVarP(&devTCPPort, "port", "p", 7363, "The port to listen for socket clients on")
	flags.StringVar(&devUser, "user", "", "User ID accepted by AUTH")
	flags.StringVar(&devKey, "key", "", "Secret key used to verify AUTH signatures")
}

var DevserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run a local stand-in for the event-store server",
	Long: `Run a local stand-in for the event-store server.

It answers PING, AUTH, APPEND and SCAN over HTTP (POST /command),
WebSocket (GET /ws) and a raw TCP line protocol, which is enough to
exercise every transport and response encoding of the client.

Usage
	beacon devserver --user dev --key dev-secret

`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer signalStop()

		log, err := env.MakeLogger()
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		server := devserver.New(devserver.Options{
			Host:      devHost,
			HTTPPort:  devHTTPPort,
			TCPPort:   devTCPPort,
			UserID:    devUser,
			SecretKey: devKey,
			Log:       log,
		})

		if err := server.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()
		signalStop()
		log.Info("Shutting down gracefully, press Ctrl+C again to force")

		err = multierr.Append(err, server.Close())
		if err != nil {
			log.Error("Dev server forced to shutdown", zap.Error(err))
		}

		log.Info("Exiting")
		return err
	},
}
