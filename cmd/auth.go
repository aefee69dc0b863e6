package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/teemow/dayplanner/internal/config"
	"github.com/teemow/dayplanner/internal/credential"
	"github.com/teemow/dayplanner/internal/google"
)

func newAuthCmd() *cobra.Command {
	var code string

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize access to Google Calendar and Google Tasks",
		Long: `Authorize dayplanner to access Google Calendar and Google Tasks.

The command prints a consent URL. Open it, sign in, grant access and paste the
authorization code back. The resulting refresh token is stored in the
configured credential store and refreshed automatically from then on.

Requires GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET (or credential.client_id
and credential.client_secret in the config file).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return withManager(cmd.Context(), cfg, func(m *credential.Manager) error {
				return runAuth(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), cfg, m, code)
			})
		},
	}

	cmd.Flags().StringVar(&code, "code", "", "Authorization code, skips the interactive prompt")

	cmd.AddCommand(newAuthStatusCmd())
	cmd.AddCommand(newAuthLogoutCmd())

	return cmd
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return withManager(cmd.Context(), cfg, func(m *credential.Manager) error {
				st, err := m.Status(cmd.Context())
				if err != nil {
					return err
				}
				printStatus(cmd.OutOrStdout(), st)
				return nil
			})
		},
	}
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Delete the stored credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return withManager(cmd.Context(), cfg, func(m *credential.Manager) error {
				if err := m.Clear(cmd.Context()); err != nil && !errors.Is(err, credential.ErrNotFound) {
					return fmt.Errorf("failed to delete credential: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Credential for account %q deleted.\n", m.Account())
				return nil
			})
		},
	}
}

// withManager opens the credential store and runs fn with a manager on it.
func withManager(ctx context.Context, cfg *config.Config, fn func(*credential.Manager) error) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}
	defer closeStore()

	oauthConf := google.OAuthConfig(cfg.Credential.ClientID, cfg.Credential.ClientSecret)
	m := credential.NewManager(store, google.NewRefresher(oauthConf, nil),
		credential.WithLogger(logger),
		credential.WithAccount(cfg.Credential.Account),
		credential.WithSafetyMargin(cfg.Credential.SafetyMargin),
	)
	return fn(m)
}

func runAuth(ctx context.Context, in io.Reader, out io.Writer, cfg *config.Config, m *credential.Manager, code string) error {
	if cfg.Credential.ClientID == "" || cfg.Credential.ClientSecret == "" {
		return errors.New("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set")
	}
	conf := google.OAuthConfig(cfg.Credential.ClientID, cfg.Credential.ClientSecret)

	if code == "" {
		fmt.Fprintf(out, "Visit this URL in your browser and grant access to Google Calendar and Google Tasks:\n\n%s\n\n", google.AuthURL(conf, uuid.NewString()))
		fmt.Fprint(out, "Authorization code: ")

		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read authorization code: %w", err)
		}
		code = strings.TrimSpace(line)
	}
	if code == "" {
		return errors.New("no authorization code given")
	}

	cred, err := google.Exchange(ctx, conf, code)
	if err != nil {
		return err
	}
	if err := m.Bootstrap(ctx, cred); err != nil {
		return err
	}

	fmt.Fprintf(out, "Authorized account %q. The credential expires at %s and is refreshed automatically.\n",
		m.Account(), cred.Expiry.Format(time.RFC3339))
	return nil
}

func printStatus(out io.Writer, st credential.Status) {
	fmt.Fprintf(out, "Account:     %s\n", st.Account)
	if !st.HasCredential {
		fmt.Fprintln(out, "Credential:  none, run \"dayplanner auth\"")
		return
	}
	fmt.Fprintln(out, "Credential:  stored")
	fmt.Fprintf(out, "Valid:       %t\n", st.Valid)
	if !st.Expiry.IsZero() {
		fmt.Fprintf(out, "Expiry:      %s", st.Expiry.Format(time.RFC3339))
		if st.ExpiresIn > 0 {
			fmt.Fprintf(out, " (in %s)", st.ExpiresIn)
		}
		fmt.Fprintln(out)
	}
	if len(st.Scopes) > 0 {
		fmt.Fprintf(out, "Scopes:      %s\n", strings.Join(st.Scopes, ", "))
	}
}
