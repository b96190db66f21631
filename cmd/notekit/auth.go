package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/aretw0/notekit/pkg/core"
)

var (
	authEmail    string
	authPassword string
	authName     string
	idToken      string
)

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account and sign in",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		sess, err := e.accounts.SignUp(context.Background(), authEmail, authPassword, authName)
		if err != nil {
			return err
		}
		return printSession(cmd.OutOrStdout(), "Signed up as", sess)
	},
}

var signinCmd = &cobra.Command{
	Use:   "signin",
	Short: "Sign in with email and password",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		sess, err := e.accounts.SignIn(context.Background(), authEmail, authPassword)
		if err != nil {
			return err
		}
		return printSession(cmd.OutOrStdout(), "Signed in as", sess)
	},
}

var signinProviderCmd = &cobra.Command{
	Use:   "signin-provider [provider]",
	Short: "Sign in with an identity provider ID token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		sess, err := e.accounts.SignInWithIdentityProvider(context.Background(), args[0], idToken)
		if err != nil {
			return err
		}
		return printSession(cmd.OutOrStdout(), "Signed in as", sess)
	},
}

var signoutCmd = &cobra.Command{
	Use:   "signout",
	Short: "Sign out",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		if err := e.accounts.SignOut(context.Background()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		sess, err := e.session(context.Background())
		if err != nil {
			return err
		}
		return printSession(cmd.OutOrStdout(), "Signed in as", sess)
	},
}

func printSession(w io.Writer, prefix string, sess core.Session) error {
	if jsonOutput {
		return writeJSON(w, sess)
	}
	who := sess.Email
	if sess.DisplayName != "" {
		who = fmt.Sprintf("%s <%s>", sess.DisplayName, sess.Email)
	}
	fmt.Fprintf(w, "%s %s (account %s, via %s, expires %s)\n",
		prefix, who, sess.AccountID, sess.Provider, sess.ExpiresAt.Local().Format("2006-01-02 15:04"))
	return nil
}

func init() {
	for _, cmd := range []*cobra.Command{signupCmd, signinCmd} {
		cmd.Flags().StringVar(&authEmail, "email", "", "Account email")
		cmd.Flags().StringVar(&authPassword, "password", "", "Account password")
		cmd.MarkFlagRequired("email")
		cmd.MarkFlagRequired("password")
	}
	signupCmd.Flags().StringVar(&authName, "name", "", "Display name")
	signinProviderCmd.Flags().StringVar(&idToken, "token", "", "ID token issued by the provider")
	signinProviderCmd.MarkFlagRequired("token")

	rootCmd.AddCommand(signupCmd, signinCmd, signinProviderCmd, signoutCmd, whoamiCmd)
}
