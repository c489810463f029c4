package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chattertools/chattergo/chat"
	"github.com/chattertools/chattergo/session"
)

func newChannelsCmd() *cobra.Command {
	var index bool
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "Show which channels each account user is in",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			client := newClient(cfg, newLogger(cfg.Debug))
			token, err := resolveToken(cmd.Context(), client, cfg)
			if err != nil {
				return err
			}
			raw, err := client.AccountData(cmd.Context(), token)
			if err != nil {
				return err
			}

			membership := chat.MapChannels(raw, index)

			users := make([]string, 0, len(membership.UsersToChannels))
			for u := range membership.UsersToChannels {
				users = append(users, u)
			}
			sort.Strings(users)
			for _, u := range users {
				channels := membership.Channels(u)
				sort.Strings(channels)
				fmt.Printf("%s: %s\n", u, strings.Join(channels, ", "))
			}

			if index {
				channels := make([]string, 0, len(membership.ChannelsToUsers))
				for ch := range membership.ChannelsToUsers {
					channels = append(channels, ch)
				}
				sort.Strings(channels)
				fmt.Println()
				for _, ch := range channels {
					members := membership.Users(ch)
					sort.Strings(members)
					fmt.Printf("#%s: %s\n", ch, strings.Join(members, ", "))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&index, "index", false, "Also print the channel-to-users index")
	return cmd
}

func newRecentCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Print recently archived messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Session.ArchiveDBPath == "" {
				return fmt.Errorf("archive disabled (set CHATTER_ARCHIVE_DB)")
			}

			store, err := session.NewStore(cfg.Session.ArchiveDBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			messages, err := store.Recent(limit)
			if err != nil {
				return err
			}
			for i := range messages {
				fmt.Println(formatMessage(&messages[i]))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of messages to print")
	return cmd
}
