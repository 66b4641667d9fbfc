package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/chao7150/wpmastodon/internal/model"
	"github.com/chao7150/wpmastodon/internal/oauth"
	"github.com/chao7150/wpmastodon/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(true)
		if err != nil {
			return err
		}
		defer e.Close()
		fmt.Println("Database schema is up to date.")
		return nil
	},
}

// apps command
var appsCmd = &cobra.Command{
	Use:   "apps",
	Short: "Manage registered client apps",
}

var appsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered apps",
	RunE: withEnv(func(ctx context.Context, e *env, args []string) error {
		apps, err := e.store.SelectApps(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CLIENT ID\tNAME\tSCOPES\tPOST TYPES\tCREATED\tLAST USED")
		for _, a := range apps {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				a.ClientId, a.ClientName, a.Scopes, a.PostTypes,
				a.CreationDate.Format(time.DateTime), formatTime(a.LastUsed))
		}
		return w.Flush()
	}),
}

var appsDeleteCmd = &cobra.Command{
	Use:   "delete <client-id>...",
	Short: "Delete apps with their codes and tokens",
	Args:  cobra.MinimumNArgs(1),
	RunE: withEnv(func(ctx context.Context, e *env, args []string) error {
		for _, id := range args {
			if err := e.store.DeleteApp(ctx, id); err != nil {
				return err
			}
			fmt.Printf("Deleted app %s\n", id)
		}
		return nil
	}),
}

var appsCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete apps that no live code or token refers to",
	RunE: withEnv(func(ctx context.Context, e *env, args []string) error {
		res, err := oauth.New(e.store, e.cfg.OAuth, e.logger).Sweep(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d apps\n", res.Apps)
		return nil
	}),
}

// tokens command
var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "Manage access tokens",
}

var tokensRevokeCmd = &cobra.Command{
	Use:   "revoke <token>",
	Short: "Revoke an access token",
	Args:  cobra.ExactArgs(1),
	RunE: withEnv(func(ctx context.Context, e *env, args []string) error {
		ok, err := e.store.DeleteAccessToken(ctx, args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no such token")
		}
		fmt.Println("Token revoked.")
		return nil
	}),
}

var tokensSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired codes, tokens and unused apps",
	RunE: withEnv(func(ctx context.Context, e *env, args []string) error {
		res, err := oauth.New(e.store, e.cfg.OAuth, e.logger).Sweep(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d codes, %d tokens and %d apps\n", res.Codes, res.Tokens, res.Apps)
		return nil
	}),
}

// options command
var optionsCmd = &cobra.Command{
	Use:   "options",
	Short: "Read and write site options",
}

var optionNames = map[string]string{
	"disable-logins":     store.OptionDisableLogins,
	"default-post-types": store.OptionDefaultPostTypes,
}

func optionName(alias string) (string, error) {
	name, ok := optionNames[alias]
	if !ok {
		return "", fmt.Errorf("unknown option %q (want disable-logins or default-post-types)", alias)
	}
	return name, nil
}

var optionsGetCmd = &cobra.Command{
	Use:   "get <option>",
	Short: "Print an option",
	Args:  cobra.ExactArgs(1),
	RunE: withEnv(func(ctx context.Context, e *env, args []string) error {
		name, err := optionName(args[0])
		if err != nil {
			return err
		}
		value, _, err := e.store.GetOption(ctx, name)
		if err != nil {
			return err
		}
		fmt.Println(value)
		return nil
	}),
}

var optionsSetCmd = &cobra.Command{
	Use:   "set <option> <value>",
	Short: "Set an option; an empty value deletes it",
	Args:  cobra.ExactArgs(2),
	RunE: withEnv(func(ctx context.Context, e *env, args []string) error {
		name, err := optionName(args[0])
		if err != nil {
			return err
		}
		if args[1] == "" {
			return e.store.DeleteOption(ctx, name)
		}
		return e.store.PutOption(ctx, name, args[1], 0)
	}),
}

// debug command
var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Debugging aids",
}

var reregisterEnable bool

var debugReregisterCmd = &cobra.Command{
	Use:   "reregister",
	Short: "Show or arm auto re-register of unknown client ids",
	Long: "With --enable, the first unknown client_id presented at authorize or\n" +
		"token within the next hour is registered instead of rejected. Use\n" +
		"after the apps table was lost while clients kept their credentials.",
	RunE: withEnv(func(ctx context.Context, e *env, args []string) error {
		if reregisterEnable {
			if err := oauth.New(e.store, e.cfg.OAuth, e.logger).EnableReregister(ctx); err != nil {
				return err
			}
			fmt.Println("Auto re-register armed for one hour.")
			return nil
		}
		armed, err := e.store.BoolOption(ctx, store.OptionAutoReregister)
		if err != nil {
			return err
		}
		if armed {
			fmt.Println("Auto re-register is armed.")
		} else {
			fmt.Println("Auto re-register is off.")
		}
		return nil
	}),
}

// users command
var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage blog users",
}

var (
	userRole     string
	userPassword string
	userName     string
	userEmail    string
)

var usersAddCmd = &cobra.Command{
	Use:   "add <login>",
	Short: "Create a user",
	Args:  cobra.ExactArgs(1),
	RunE: withEnv(func(ctx context.Context, e *env, args []string) error {
		if userPassword == "" {
			return fmt.Errorf("--password is required")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(userPassword), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		u := &model.User{
			Login:        args[0],
			DisplayName:  userName,
			Email:        userEmail,
			PasswordHash: string(hash),
			Role:         userRole,
		}
		if u.DisplayName == "" {
			u.DisplayName = u.Login
		}
		if err := e.store.InsertUser(ctx, u); err != nil {
			return err
		}
		fmt.Printf("Created user %s (id %d, %s)\n", u.Login, u.Id, u.Role)
		return nil
	}),
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.DateTime)
}

func init() {
	appsCmd.AddCommand(appsListCmd, appsDeleteCmd, appsCleanupCmd)
	tokensCmd.AddCommand(tokensRevokeCmd, tokensSweepCmd)
	optionsCmd.AddCommand(optionsGetCmd, optionsSetCmd)
	debugReregisterCmd.Flags().BoolVar(&reregisterEnable, "enable", false, "arm auto re-register")
	debugCmd.AddCommand(debugReregisterCmd)

	usersAddCmd.Flags().StringVar(&userRole, "role", model.RoleAdministrator, "role of the new user")
	usersAddCmd.Flags().StringVar(&userPassword, "password", "", "password of the new user")
	usersAddCmd.Flags().StringVar(&userName, "name", "", "display name")
	usersAddCmd.Flags().StringVar(&userEmail, "email", "", "email address")
	usersCmd.AddCommand(usersAddCmd)

	rootCmd.AddCommand(migrateCmd, appsCmd, tokensCmd, optionsCmd, debugCmd, usersCmd)
}
