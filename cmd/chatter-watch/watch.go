package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chattertools/chattergo/chat"
	"github.com/chattertools/chattergo/session"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Poll for new messages and print them as they arrive",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Debug)
			client := newClient(cfg, logger)

			var archive *session.Store
			if cfg.Session.ArchiveDBPath != "" {
				archive, err = session.NewStore(cfg.Session.ArchiveDBPath)
				if err != nil {
					return fmt.Errorf("open archive: %w", err)
				}
				defer archive.Close()
			}

			sess, err := session.New(client, session.Config{
				Token:        cfg.Chatter.Token,
				Pass:         cfg.Chatter.Pass,
				Users:        cfg.Session.Users,
				PollInterval: cfg.Session.PollInterval,
				Archive:      archive,
				Logger:       logger,
			})
			if err != nil {
				return err
			}

			sess.OnStart(func(token string) {
				logger.Info().Msg("authenticated")
			})
			sess.OnMessage(func(batch []chat.Message) {
				for i := range batch {
					fmt.Println(formatMessage(&batch[i]))
				}
			})

			if err := sess.Start(cmd.Context()); err != nil {
				return err
			}
			fmt.Printf("Watching %s...\n", strings.Join(sess.TrackedUsers(), ", "))

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case <-sigCh:
				fmt.Println("\nShutting down...")
				sess.Stop()
				return nil
			case <-sess.Done():
				return sess.Err()
			case <-cmd.Context().Done():
				sess.Stop()
				return context.Cause(cmd.Context())
			}
		},
	}
}

func formatMessage(m *chat.Message) string {
	stamp := m.Timestamp().Format("15:04:05")
	switch m.Kind {
	case chat.KindTell:
		return fmt.Sprintf("[%s] %s -> %s: %s", stamp, m.Sender, m.Recipient, m.Body)
	case chat.KindJoin:
		return fmt.Sprintf("[%s] * %s joined #%s", stamp, m.Sender, m.Channel)
	case chat.KindLeave:
		return fmt.Sprintf("[%s] * %s left #%s", stamp, m.Sender, m.Channel)
	default:
		return fmt.Sprintf("[%s] #%s %s: %s (seen by %s)", stamp, m.Channel, m.Sender, m.Body, joinSet(m.Recipients))
	}
}

func joinSet(set map[string]struct{}) string {
	if len(set) == 0 {
		return "nobody"
	}
	users := make([]string, 0, len(set))
	for u := range set {
		users = append(users, u)
	}
	sort.Strings(users)
	return strings.Join(users, ",")
}
