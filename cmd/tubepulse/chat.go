package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

func newChatCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Talk to the YouTube analytics assistant (exit or quit to leave, /clear to reset)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(opts)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			_, chat := a.sessions.Get("")
			in := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("> ")
				if !in.Scan() {
					fmt.Println()
					return in.Err()
				}
				line := strings.TrimSpace(in.Text())
				switch strings.ToLower(line) {
				case "exit", "quit":
					return nil
				case "/clear":
					chat.Clear()
					fmt.Println("Conversation cleared.")
					continue
				}

				category := a.categorizer.Categorize(ctx, line)
				fmt.Printf("[%s] %s\n\n", category, chat.Reply(ctx, line))
				if ctx.Err() != nil {
					return nil
				}
			}
		},
	}
}
