package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newAuthCommand(ctx *commandContext) *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the Google sign-in used by the Sheets API transport",
	}
	authCmd.AddCommand(newAuthLoginCommand(ctx))
	authCmd.AddCommand(newAuthLogoutCommand(ctx))
	authCmd.AddCommand(newAuthStatusCommand(ctx))
	authCmd.AddCommand(newAuthRefreshCommand(ctx))
	authCmd.AddCommand(newAuthImportCommand(ctx))
	return authCmd
}

func newAuthLoginCommand(ctx *commandContext) *cobra.Command {
	var code string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with Google and store the credential",
		Long: "Prints the Google consent URL. After approving, paste the code parameter\n" +
			"from the redirect URL, or pass it directly with --code.",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := ctx.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Dispose()
			session := svc.Session()
			out := cmd.OutOrStdout()

			code = strings.TrimSpace(code)
			if code == "" {
				url, err := session.AuthCodeURL(uuid.NewString())
				if err != nil {
					return err
				}
				fmt.Fprintln(out, "Open this URL in a browser and approve access:")
				fmt.Fprintln(out, "  "+url)
				fmt.Fprint(out, "Authorization code: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && strings.TrimSpace(line) == "" {
					return errors.New("no authorization code entered")
				}
				code = strings.TrimSpace(line)
			}

			cred, err := session.Complete(cmd.Context(), code)
			if err != nil {
				return err
			}
			who := "Google account"
			if cred.Profile != nil && cred.Profile.Email != "" {
				who = cred.Profile.Email
			}
			fmt.Fprintf(out, "Signed in as %s (token valid until %s)\n", who, cred.Expiry().Local().Format(time.DateTime))
			return nil
		},
	}

	cmd.Flags().StringVar(&code, "code", "", "Authorization code from the OAuth redirect")
	return cmd
}

func newAuthLogoutCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove every stored credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := ctx.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Dispose()
			if err := svc.Session().SignOut(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func newAuthStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the stored Google session",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := ctx.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Dispose()
			st := svc.Session().Status()
			if asJSON {
				return writeJSON(cmd, st)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, sessionLine(st, shouldColorize(out)))
			fmt.Fprintln(out, renderStatusLine("Refreshable", statusInfo, yesNo(st.Refreshable), false))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the session as JSON")
	return cmd
}

func newAuthRefreshCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Trade the stored refresh token for a new access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := ctx.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Dispose()
			cred, err := svc.Session().Refresh(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Access token valid until %s\n", cred.Expiry().Local().Format(time.DateTime))
			return nil
		},
	}
}

func newAuthImportCommand(ctx *commandContext) *cobra.Command {
	var token string
	var expiresIn time.Duration

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Store an access token obtained elsewhere",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(token) == "" {
				return errors.New("--token is required")
			}
			svc, _, err := ctx.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Dispose()
			cred, err := svc.Session().Import(cmd.Context(), token, expiresIn)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Token stored (valid until %s)\n", cred.Expiry().Local().Format(time.DateTime))
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Access token")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", time.Hour, "Remaining token lifetime")
	return cmd
}
