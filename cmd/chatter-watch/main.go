package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/chattertools/chattergo/chatter"
	"github.com/chattertools/chattergo/internal/conf"
)

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chatter-watch",
		Short: "Watch and post Chatter messages from the terminal",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if err := godotenv.Load(); err != nil {
				log.Println("No .env file found, using environment variables")
			}
		},
	}

	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newSendCmd())
	cmd.AddCommand(newTellCmd())
	cmd.AddCommand(newChannelsCmd())
	cmd.AddCommand(newRecentCmd())

	return cmd
}

func loadConfig() (*conf.Config, error) {
	cfg := conf.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}

func newClient(cfg *conf.Config, log zerolog.Logger) *chatter.Client {
	return chatter.NewClient(cfg.Chatter.BaseURL,
		chatter.WithLogger(log),
		chatter.WithRetries(uint64(cfg.Chatter.Retries)),
	)
}

// resolveToken returns the configured token, exchanging the pass first when
// that is what the config carries.
func resolveToken(ctx context.Context, client *chatter.Client, cfg *conf.Config) (string, error) {
	if cfg.Chatter.Token != "" {
		return cfg.Chatter.Token, nil
	}
	return client.GetToken(ctx, cfg.Chatter.Pass)
}
