package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"linkgate/internal/apiclient"
)

const defaultURL = "http://localhost:8080"

// statusError marks a non-2xx reply whose body was already printed.
type statusError struct{ code int }

func (e statusError) Error() string { return fmt.Sprintf("server returned %d", e.code) }

func newRootCmd(out io.Writer) *cobra.Command {
	v := viper.New()
	root := &cobra.Command{
		Use:           "linkctl",
		Short:         "Inspect and manage account links",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().String("url", defaultURL, "linkgate base URL (env LINKCTL_URL)")
	root.PersistentFlags().String("api-key", "", "API key (env API_KEY)")
	_ = v.BindPFlag("url", root.PersistentFlags().Lookup("url"))
	_ = v.BindPFlag("api_key", root.PersistentFlags().Lookup("api-key"))
	_ = v.BindEnv("url", "LINKCTL_URL")
	_ = v.BindEnv("api_key", "API_KEY")

	client := func() *apiclient.Client {
		return apiclient.New(v.GetString("url"), v.GetString("api_key"))
	}
	show := func(cmd *cobra.Command, resp *apiclient.Response, err error) error {
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), resp.Indented())
		if !resp.OK() {
			return statusError{code: resp.StatusCode}
		}
		return nil
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "stats",
			Short: "Show link and code counts",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				resp, err := client().Stats(cmd.Context())
				return show(cmd, resp, err)
			},
		},
		&cobra.Command{
			Use:   "health",
			Short: "Show service health",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				resp, err := client().Health(cmd.Context())
				return show(cmd, resp, err)
			},
		},
		lookupCmd("check", "Show the link of an account or external id", func(ctx context.Context, account string, external int64) (*apiclient.Response, error) {
			return client().Link(ctx, account, external)
		}, show),
		lookupCmd("unlink", "Remove the link of an account or external id", func(ctx context.Context, account string, external int64) (*apiclient.Response, error) {
			return client().Unlink(ctx, account, external)
		}, show),
		codeCmd(client, show),
		verifyCmd(client, show),
		historyCmd(client, show),
	)
	return root
}

type printFunc func(*cobra.Command, *apiclient.Response, error) error

func lookupCmd(use, short string, call func(context.Context, string, int64) (*apiclient.Response, error), show printFunc) *cobra.Command {
	var (
		account  string
		external int64
	)
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if account == "" && external <= 0 {
				return errors.New("one of --account or --external is required")
			}
			resp, err := call(cmd.Context(), account, external)
			return show(cmd, resp, err)
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "account id (UUID)")
	cmd.Flags().Int64Var(&external, "external", 0, "external chat id")
	cmd.MarkFlagsMutuallyExclusive("account", "external")
	return cmd
}

func codeCmd(client func() *apiclient.Client, show printFunc) *cobra.Command {
	var account, name string
	cmd := &cobra.Command{
		Use:   "code",
		Short: "Issue a linking code for an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := client().IssueCode(cmd.Context(), account, name)
			return show(cmd, resp, err)
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "account id (UUID)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func verifyCmd(client func() *apiclient.Client, show printFunc) *cobra.Command {
	var (
		code     string
		external int64
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Redeem a code for an external id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := client().Verify(cmd.Context(), code, external)
			return show(cmd, resp, err)
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "linking code")
	cmd.Flags().Int64Var(&external, "external", 0, "external chat id")
	_ = cmd.MarkFlagRequired("code")
	_ = cmd.MarkFlagRequired("external")
	return cmd
}

func historyCmd(client func() *apiclient.Client, show printFunc) *cobra.Command {
	var (
		account string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show audit entries for an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := client().Audit(cmd.Context(), account, limit)
			return show(cmd, resp, err)
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "account id (UUID)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum entries")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}
