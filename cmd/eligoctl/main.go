package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	apiFlag    string
	userFlag   string
	secretFlag string
	rootCmd    = &cobra.Command{
		Use:   "eligoctl",
		Short: "CLI client for the list sync service",
	}
)

func main() {
	rootCmd.PersistentFlags().StringVarP(&apiFlag, "api", "a", "http://localhost:8080", "Sync service base URL")
	rootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "", "Acting user ID")
	rootCmd.PersistentFlags().StringVar(&secretFlag, "secret", "", "JWT signing secret; sends a bearer token instead of X-User-ID")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Check service health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(newClient(apiFlag, "", ""), os.Stdout)
		},
	})

	changesCmd := &cobra.Command{
		Use:   "changes",
		Short: "Print every visible change after a watermark",
		RunE: func(cmd *cobra.Command, args []string) error {
			since, _ := cmd.Flags().GetInt64("since")
			return runChanges(newClient(apiFlag, userFlag, secretFlag), since, os.Stdout)
		},
	}
	changesCmd.Flags().Int64P("since", "s", 0, "lastSynced watermark in milliseconds")
	rootCmd.AddCommand(changesCmd)

	actCmd := &cobra.Command{
		Use:   "act",
		Short: "Submit one action, e.g. --type items.create --fields '{\"listId\":\"L1\"}'",
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, _ := cmd.Flags().GetString("type")
			id, _ := cmd.Flags().GetString("id")
			fields, _ := cmd.Flags().GetString("fields")
			at, _ := cmd.Flags().GetInt64("time")
			return runAct(newClient(apiFlag, userFlag, secretFlag), typ, id, fields, at, os.Stdout)
		},
	}
	actCmd.Flags().StringP("type", "t", "", "Action type <kind>.<create|change|delete> (required)")
	actCmd.Flags().String("id", "", "Entity ID (random UUID when empty)")
	actCmd.Flags().StringP("fields", "f", "", "Fields as a JSON object")
	actCmd.Flags().Int64("time", 0, "Action time in milliseconds (now when zero)")
	_ = actCmd.MarkFlagRequired("type")
	rootCmd.AddCommand(actCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "invitation INVITATION_ID",
		Short: "Look up the lists behind an invitation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInvitation(newClient(apiFlag, userFlag, secretFlag), args[0], os.Stdout)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
