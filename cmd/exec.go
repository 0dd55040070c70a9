package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/beacon/client"
	"github.com/luma/beacon/internal/env"
)

var (
	execURL  string
	execUser string
	execKey  string
	execAuth bool
)

func init() {
	flags := ExecCmd.PersistentFlags()

	flags.StringVar(&execURL, "url", "", "Server URL; overrides BEACON_URL")
	flags.StringVar(&execUser, "user", "", "User ID; overrides BEACON_USER")
	flags.StringVar(&execKey, "key", "", "Secret key; overrides BEACON_KEY")
	flags.BoolVar(&execAuth, "auth", false, "Run the AUTH exchange before the command (persistent transports only)")
}

var ExecCmd = &cobra.Command{
	Use:   "exec <command...>",
	Short: "Execute one command against the event-store server",
	Long: `Execute one command against the event-store server and print
each result record as a JSON line.

Usage
	beacon exec PING
	beacon exec --auth SCAN orders

`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		log, err := env.MakeLogger()
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		conf, err := env.LoadConfig(ctx)
		if err != nil {
			return err
		}

		if execURL == "" {
			execURL = conf.URL
		}
		if execUser == "" {
			execUser = conf.UserID
		}
		if execKey == "" {
			execKey = conf.SecretKey
		}

		c, err := client.New(execURL, client.Options{
			UserID:         execUser,
			SecretKey:      execKey,
			ConnectTimeout: conf.ConnectTimeout(),
			RequestTimeout: conf.RequestTimeout(),
			Log:            log,
		})
		if err != nil {
			return err
		}

		defer func() {
			if cerr := c.Close(); cerr != nil {
				log.Warn("Close failed", zap.Error(cerr))
			}
		}()

		if execAuth {
			if err := c.Authenticate(ctx); err != nil {
				return err
			}
		}

		records, err := c.Execute(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}

		for _, record := range records {
			fmt.Println(record.JSON())
		}

		return nil
	},
}
