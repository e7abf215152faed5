package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/fleetgrid-io/fleetgrid-ce/internal/cache"
	"github.com/fleetgrid-io/fleetgrid-ce/internal/config"
	"github.com/fleetgrid-io/fleetgrid-ce/internal/database"
	"github.com/fleetgrid-io/fleetgrid-ce/internal/guard"
	"github.com/fleetgrid-io/fleetgrid-ce/internal/repository"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var configPathFlag string

var rootCmd = &cobra.Command{
	Use:   "fleetgrid",
	Short: "FleetGrid CLI - fleet dashboard management tool",
	Long: `FleetGrid Command Line Interface

Operational utilities for a FleetGrid installation: unlocking accounts,
resetting rate limits, lifting address bans and managing users without
going through the dashboard.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPathFlag, "config", "config.yaml", "path to configuration file")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(unlockAccountCmd)
	rootCmd.AddCommand(resetLimitsCmd)
	rootCmd.AddCommand(liftBanCmd)
	rootCmd.AddCommand(lockoutStatusCmd)
	rootCmd.AddCommand(setPasswordCmd)

	resetLimitsCmd.Flags().StringVar(&endpointFlag, "endpoint", "", "restrict the reset to one endpoint category")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("FleetGrid CLI %s\n", rootCmd.Version)
	},
}

var unlockAccountCmd = &cobra.Command{
	Use:   "unlock-account <email>",
	Short: "Unlock a locked dashboard account",
	Long: `Unlock clears the account's lock mark and failure counter in the
ephemeral store and marks the ledger rows unlocked, exactly like the
dashboard's admin unlock.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		gate, cleanup, err := buildGate()
		if err != nil {
			return err
		}
		defer cleanup()

		if err := gate.UnlockAccount(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("unlock %s: %w", args[0], err)
		}
		fmt.Printf("account %s unlocked\n", args[0])
		return nil
	},
}

var endpointFlag string

var resetLimitsCmd = &cobra.Command{
	Use:   "reset-limits <subject>",
	Short: "Clear rate-limit counters and blocks for a user ID or address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		gate, cleanup, err := buildGate()
		if err != nil {
			return err
		}
		defer cleanup()

		removed, err := gate.ResetLimits(cmd.Context(), args[0], endpointFlag)
		if err != nil {
			return fmt.Errorf("reset limits for %s: %w", args[0], err)
		}
		fmt.Printf("removed %d keys for %s\n", removed, args[0])
		return nil
	},
}

var liftBanCmd = &cobra.Command{
	Use:   "lift-ban <ip>",
	Short: "Lift an address ban before it expires",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		gate, cleanup, err := buildGate()
		if err != nil {
			return err
		}
		defer cleanup()

		if err := gate.LiftBan(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("lift ban on %s: %w", args[0], err)
		}
		fmt.Printf("ban on %s lifted\n", args[0])
		return nil
	},
}

var lockoutStatusCmd = &cobra.Command{
	Use:   "lockout-status <email>",
	Short: "Show an account's lock state and failure count",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		gate, cleanup, err := buildGate()
		if err != nil {
			return err
		}
		defer cleanup()

		st, failures := gate.LockStatus(cmd.Context(), args[0])
		if st.Locked {
			fmt.Printf("%s: LOCKED, %s remaining\n", args[0], time.Duration(st.RemainingSeconds)*time.Second)
		} else {
			fmt.Printf("%s: unlocked, %d recent failures\n", args[0], failures)
		}
		return nil
	},
}

var setPasswordCmd = &cobra.Command{
	Use:   "set-password <email> <password>",
	Short: "Set a user's password directly in the database",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := database.Connect(cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		users := repository.NewUserRepository(db)
		user, err := users.GetByEmail(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("lookup %s: %w", args[0], err)
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(args[1]), cfg.Auth.BcryptCost)
		if err != nil {
			return err
		}
		if err := users.SetPassword(cmd.Context(), user.ID, string(hash)); err != nil {
			return fmt.Errorf("set password for %s: %w", args[0], err)
		}
		fmt.Printf("password updated for %s\n", args[0])
		return nil
	},
}

func loadConfig() (*config.Config, error) {
	if err := config.Load(configPathFlag); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v, using defaults and environment\n", err)
	}
	return config.Get(), nil
}

// buildGate wires a gate against the live stores, same as the server does.
func buildGate() (*guard.Gate, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, nil, err
	}

	store, err := cache.NewRedisStore(cache.Config{
		Addr:      fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		KeyPrefix: cfg.Redis.KeyPrefix,
		OpTimeout: cfg.Redis.OpTimeout,
	})
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	gate := guard.New(store, repository.NewAttemptRepository(db), guard.NewConfig(cfg.Guard))
	cleanup := func() {
		store.Close()
		db.Close()
	}
	return gate, cleanup, nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
