package cmd

import (
	"errors"
	"fmt"

	"geo-refresh/feature/refresh"

	"github.com/spf13/cobra"
)

var schemaOpts struct {
	source string
	target string
	creds  credentialFlags
}

// schemaCmd compares two schemas without refreshing.
var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Check that every source field exists in the target",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := setup()
		if err != nil {
			return err
		}
		defer rt.logger.Sync()

		req, err := refresh.NewRequest(schemaOpts.source, schemaOpts.target, refresh.MethodTruncate, "", schemaOpts.creds.credentials(), 0)
		if err != nil {
			return err
		}
		check, err := rt.refresh.CheckSchema(cmd.Context(), req)
		if err != nil {
			return err
		}

		if check.Match {
			fmt.Println("Schemas match.")
			return nil
		}
		for _, f := range check.Mismatched {
			fmt.Printf("Source: %s not found in target.\n", f)
		}
		return errors.New("source fields not matching target")
	},
}

func init() {
	schemaCmd.Flags().StringVar(&schemaOpts.source, "source", "", "Source dataset path")
	schemaCmd.Flags().StringVar(&schemaOpts.target, "target", "", "Target dataset path")
	schemaOpts.creds.register(schemaCmd)
	_ = schemaCmd.MarkFlagRequired("source")
	_ = schemaCmd.MarkFlagRequired("target")

	RootCmd.AddCommand(schemaCmd)
}
