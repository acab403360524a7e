package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/carehub/clinic-api/internal/core/domain"
	"github.com/carehub/clinic-api/internal/infra/app"
	"github.com/carehub/clinic-api/internal/infra/config"
	"github.com/carehub/clinic-api/internal/infra/security"
	"github.com/carehub/clinic-api/internal/usecase"
)

const commandTimeout = 30 * time.Second

// environment supplies configuration and the revocation service; tests replace it.
type environment struct {
	loadConfig  func() (*config.AppConfig, error)
	openService func(ctx context.Context, cfg *config.AppConfig) (*usecase.RevocationService, func(), error)
}

func defaultEnvironment() environment {
	return environment{
		loadConfig: config.Load,
		openService: func(ctx context.Context, cfg *config.AppConfig) (*usecase.RevocationService, func(), error) {
			log, err := zap.NewProduction()
			if err != nil {
				return nil, nil, err
			}
			return app.OpenRevocationService(ctx, cfg, log)
		},
	}
}

func main() {
	_ = godotenv.Load()

	if err := newRootCmd(defaultEnvironment()).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(env environment) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "revocationctl",
		Short:        "Inspect and manage clinic session revocations",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(revokeSessionCmd(env))
	rootCmd.AddCommand(revokeUserCmd(env))
	rootCmd.AddCommand(reinstateCmd(env))
	rootCmd.AddCommand(statusCmd(env))
	rootCmd.AddCommand(sweepCmd(env))
	rootCmd.AddCommand(tokenCmd(env))
	return rootCmd
}

// withService loads config, opens the service and runs fn with a bounded context.
func withService(cmd *cobra.Command, env environment, fn func(ctx context.Context, svc *usecase.RevocationService, out io.Writer) error) error {
	cfg, err := env.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()

	svc, closeFn, err := env.openService(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	return fn(ctx, svc, cmd.OutOrStdout())
}

func revokeSessionCmd(env environment) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke-session <session-id>",
		Short: "Blacklist a single session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reason, _ := cmd.Flags().GetString("reason")
			userID, _ := cmd.Flags().GetString("user")
			actor, _ := cmd.Flags().GetString("actor")

			return withService(cmd, env, func(ctx context.Context, svc *usecase.RevocationService, out io.Writer) error {
				entry, err := svc.BlacklistSession(ctx, args[0], domain.ParseRevocationReason(reason), usecase.ForUser(userID), usecase.RevokedBy(actor))
				if err != nil {
					return err
				}
				printEntry(out, entry)
				return nil
			})
		},
	}
	cmd.Flags().String("reason", string(domain.RevocationReasonSecurityLogout), "Revocation reason")
	cmd.Flags().String("user", "", "Owning user id, enables reinstatement by user")
	cmd.Flags().String("actor", "revocationctl", "Recorded as revoked_by")
	return cmd
}

func revokeUserCmd(env environment) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke-user <user-id>",
		Short: "Blacklist every session of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reason, _ := cmd.Flags().GetString("reason")
			actor, _ := cmd.Flags().GetString("actor")

			return withService(cmd, env, func(ctx context.Context, svc *usecase.RevocationService, out io.Writer) error {
				entry, err := svc.BlacklistAllUserSessions(ctx, args[0], domain.ParseRevocationReason(reason), usecase.RevokedBy(actor))
				if err != nil {
					return err
				}
				printEntry(out, entry)
				return nil
			})
		},
	}
	cmd.Flags().String("reason", string(domain.RevocationReasonSecurityLogout), "Revocation reason")
	cmd.Flags().String("actor", "revocationctl", "Recorded as revoked_by")
	return cmd
}

func reinstateCmd(env environment) *cobra.Command {
	return &cobra.Command{
		Use:   "reinstate <user-id>",
		Short: "Remove every revocation recorded for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, env, func(ctx context.Context, svc *usecase.RevocationService, out io.Writer) error {
				removed, err := svc.ReinstateUser(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "reinstated user %s, %d entries removed\n", args[0], removed)
				return nil
			})
		},
	}
}

func statusCmd(env environment) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <session-id>",
		Short: "Show whether a session is revoked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")

			return withService(cmd, env, func(ctx context.Context, svc *usecase.RevocationService, out io.Writer) error {
				reason, err := svc.GetReason(ctx, args[0], userID)
				if err != nil {
					return err
				}
				if reason == "" {
					fmt.Fprintf(out, "session %s: active\n", args[0])
					return nil
				}
				fmt.Fprintf(out, "session %s: revoked (%s)\n%s\n", args[0], reason, domain.RevocationReason(reason).Message())
				return nil
			})
		},
	}
	cmd.Flags().String("user", "", "User id, also checks the user's wildcard entry")
	return cmd
}

func sweepCmd(env environment) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired revocation entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, env, func(ctx context.Context, svc *usecase.RevocationService, out io.Writer) error {
				removed, err := svc.SweepExpired(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "removed %d expired entries\n", removed)
				return nil
			})
		},
	}
}

func tokenCmd(env environment) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Access token utilities",
	}

	mintCmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint an access token signed with the configured secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, _ := cmd.Flags().GetString("user")
			sessionID, _ := cmd.Flags().GetString("session")
			roles, _ := cmd.Flags().GetString("roles")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if userID == "" {
				return fmt.Errorf("--user is required")
			}

			cfg, err := env.loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			mgr, err := security.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTokenTTL)
			if err != nil {
				return err
			}

			var roleList []string
			if roles != "" {
				roleList = strings.Split(roles, ",")
			}
			token, _, err := mgr.MintAccessToken(security.AccessTokenOptions{
				UserID:    userID,
				SessionID: sessionID,
				Roles:     roleList,
				TTL:       ttl,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	mintCmd.Flags().String("user", "", "User id (required)")
	mintCmd.Flags().String("session", "", "Session id")
	mintCmd.Flags().String("roles", "", "Comma separated roles")
	mintCmd.Flags().Duration("ttl", 0, "Token lifetime, defaults to jwt.access_token_ttl")

	cmd.AddCommand(mintCmd)
	return cmd
}

func printEntry(out io.Writer, entry *domain.RevocationEntry) {
	fmt.Fprintf(out, "revoked %s reason=%s expires_at=%s\n", entry.Key, entry.Reason, entry.ExpiresAt.Format(time.RFC3339))
}
