package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSendCmd() *cobra.Command {
	var as string
	cmd := &cobra.Command{
		Use:   "send <channel> <message>",
		Short: "Broadcast a message to a channel",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if as == "" {
				return fmt.Errorf("sender is required (use --as)")
			}

			client := newClient(cfg, newLogger(cfg.Debug))
			token, err := resolveToken(cmd.Context(), client, cfg)
			if err != nil {
				return err
			}
			if err := client.CreateChannelMessage(cmd.Context(), token, as, args[0], args[1]); err != nil {
				return err
			}
			fmt.Println("Message sent.")
			return nil
		},
	}
	cmd.Flags().StringVar(&as, "as", "", "Username to send as")
	return cmd
}

func newTellCmd() *cobra.Command {
	var as string
	cmd := &cobra.Command{
		Use:   "tell <recipient> <message>",
		Short: "Send a direct message to a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if as == "" {
				return fmt.Errorf("sender is required (use --as)")
			}

			client := newClient(cfg, newLogger(cfg.Debug))
			token, err := resolveToken(cmd.Context(), client, cfg)
			if err != nil {
				return err
			}
			if err := client.CreateTell(cmd.Context(), token, as, args[0], args[1]); err != nil {
				return err
			}
			fmt.Println("Message sent.")
			return nil
		},
	}
	cmd.Flags().StringVar(&as, "as", "", "Username to send as")
	return cmd
}
