package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func resolveCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "resolve <github-login>",
		Short: "Find the nostr key of a GitHub user",
		Long: `Fetches the GitHub profile and tries, in order: a key embedded in the
bio or website, a github identity claim, a twitter identity claim, the
handle directory, and a profile search by login and by display name.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			profile, err := rt.svc.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSONTo(cmd.OutOrStdout(), profileView(profile))
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderProfile(profile))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a panel")
	return cmd
}

func statusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status <owner/repo>",
		Short: "Check whether the published record of a repository is current",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, name, ok := strings.Cut(args[0], "/")
			if !ok || owner == "" || name == "" {
				return fmt.Errorf("expected owner/repo, got %q", args[0])
			}

			rt, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			status, err := rt.svc.RepoStatus(cmd.Context(), owner, name)
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSONTo(cmd.OutOrStdout(), status)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderRepoStatus(status))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a panel")
	return cmd
}

func writeJSONTo(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
