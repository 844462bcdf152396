package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hession/shreya/internal/cli"
	"github.com/hession/shreya/internal/config"
	"github.com/hession/shreya/internal/logger"
	"github.com/hession/shreya/internal/matrix"
	"github.com/hession/shreya/internal/web"
)

var (
	version = "0.1.0"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configDir string

	rootCmd := &cobra.Command{
		Use:   "shreya",
		Short: "Shreya - a persona chat companion",
		Long: `Shreya is a persona chat companion that talks to its owner and to guests.

It can:
  • Chat on Matrix, in direct messages and in group rooms
  • Chat with the owner in a password-protected web page
  • Chat in the terminal
  • Remember every user's recent conversation and mood`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if configDir != "" {
				config.SetConfigDir(configDir)
			}
		},
	}
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default ./config)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newChatCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newMemoryCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Matrix bot and the web chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, persona, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.ValidateServe(); err != nil {
				return err
			}
			if err := initLogger(cfg, cfg.Log.Console); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer logger.Close()

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, persona)
			if err != nil {
				return err
			}
			defer a.close()

			return serve(ctx, a)
		},
	}
}

// serve runs the enabled front-ends until ctx is cancelled
func serve(ctx context.Context, a *app) error {
	cfg := a.config

	if cfg.Matrix.Enabled {
		bot, err := matrix.New(&matrix.Config{
			Homeserver:  cfg.Matrix.Homeserver,
			UserID:      cfg.Matrix.UserID,
			AccessToken: cfg.Matrix.AccessToken,
			Rooms:       cfg.Matrix.Rooms,
			DB:          a.syncDB(),
		}, a.agent, a.commands)
		if err != nil {
			return err
		}
		if err := bot.Start(ctx); err != nil {
			return err
		}
		defer bot.Stop()
	}

	if cfg.Web.Enabled {
		srv := web.New(web.Options{
			Addr:       cfg.Web.Addr,
			Password:   cfg.Web.Password,
			SessionTTL: cfg.SessionTTL(),
		}, a.agent, a.commands, a.metrics)
		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("web server: %w", err)
		}
	} else {
		<-ctx.Done()
	}

	logger.Info("Shutting down")
	return nil
}

func newChatCmd() *cobra.Command {
	var opts cli.Options

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, persona, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.IsAPIKeyConfigured() {
				return errors.New("API key not configured: set OPENAI_API_KEY or add it to .secrets")
			}
			if err := initLogger(cfg, false); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer logger.Close()

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, persona)
			if err != nil {
				return err
			}
			defer a.close()

			return cli.New(a.agent, a.commands, cfg, opts).Run(ctx)
		},
	}
	cmd.Flags().StringVar(&opts.UserID, "user", "", "chat as this user id instead of the owner")
	cmd.Flags().StringVar(&opts.DisplayName, "name", "", "display name to chat with")
	return cmd
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cfg.String())

			path, _ := config.ConfigPath()
			fmt.Fprintf(out, "\nConfig file path: %s\n", path)
			return nil
		},
	}
}

func newMemoryCmd() *cobra.Command {
	memoryCmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect or delete stored user memory",
	}

	memoryCmd.AddCommand(&cobra.Command{
		Use:   "show <user_id>",
		Short: "Print a user's stored transcript and mood",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				transcript, found, err := a.agent.Remember(ctx, true, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !found {
					fmt.Fprintf(out, "No memory for %s\n", args[0])
					return nil
				}
				rec, err := a.store.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if rec != nil && rec.Mood != "" {
					fmt.Fprintf(out, "Mood: %s\n", rec.Mood)
				}
				if rec != nil && rec.LastSeen != nil {
					fmt.Fprintf(out, "Last seen: %s\n", rec.LastSeen.Format("2006-01-02 15:04:05"))
				}
				fmt.Fprint(out, transcript)
				return nil
			})
		},
	})

	memoryCmd.AddCommand(&cobra.Command{
		Use:   "forget <user_id>",
		Short: "Delete a user's stored memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.agent.Forget(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Forgot %s\n", args[0])
				return nil
			})
		},
	})

	return memoryCmd
}

// withApp wires the app for a one-shot maintenance command
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, persona, err := loadConfig()
	if err != nil {
		return err
	}
	if err := initLogger(cfg, false); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg, persona)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Shreya v%s\n", version)
		},
	}
}
