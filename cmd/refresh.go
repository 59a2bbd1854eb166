package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"geo-refresh/feature/refresh"

	"github.com/spf13/cobra"
)

var refreshOpts struct {
	job       string
	source    string
	target    string
	method    string
	idField   string
	chunkSize int
	json      bool
	creds     credentialFlags
}

// refreshCmd runs a single refresh.
var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh a target dataset from a source dataset",
	Long: `Refreshes a target dataset with either the TRUNCATE or the COMPARE method.

Examples:
  # Compare a local table into a feature layer using a profile
  geo-refresh refresh --source data/cadastre.sqlite/parcels \
    --target https://services.arcgis.com/x/arcgis/rest/services/Parcels/FeatureServer/0 \
    --method compare --id-field parcel_id --profile agol

  # Reload a PostgreSQL table
  geo-refresh refresh --source data/roads.sqlite/roads \
    --target postgres://gis:pw@db:5432/city/roads --method truncate

  # Run a job from the jobs file
  geo-refresh refresh --job parcels`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := setup()
		if err != nil {
			return err
		}
		defer rt.logger.Sync()

		req, err := refreshRequest(rt)
		if err != nil {
			return err
		}

		res, err := rt.refresh.Refresh(cmd.Context(), req)
		if res != nil {
			printResult(res, refreshOpts.json)
		}
		if err != nil {
			return err
		}
		if !res.Success {
			return errors.New(res.Message)
		}
		return nil
	},
}

func refreshRequest(rt *runtime) (refresh.Request, error) {
	if refreshOpts.job != "" {
		job, err := rt.jobs.Job(refreshOpts.job)
		if err != nil {
			return refresh.Request{}, err
		}
		return job.Request()
	}

	method, err := refresh.ParseMethod(refreshOpts.method)
	if err != nil {
		return refresh.Request{}, err
	}
	return refresh.NewRequest(refreshOpts.source, refreshOpts.target, method, refreshOpts.idField,
		refreshOpts.creds.credentials(), refreshOpts.chunkSize)
}

func printResult(res *refresh.Result, asJSON bool) {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(res)
		return
	}

	fmt.Printf("\n=== Refresh %s ===\n", res.RunID)
	fmt.Printf("Method: %s\n", res.Method)
	fmt.Printf("Source: %s\n", res.SourceDataset)
	fmt.Printf("Target: %s\n", res.TargetDataset)
	fmt.Printf("Adds: %d Updates: %d Deletes: %d\n", res.Adds, res.Updates, res.Deletes)
	fmt.Printf("Source Count: %d Target Count: %d\n", res.SourceCount, res.RecordCount)
	if res.Artifact != "" {
		fmt.Printf("Changeset: %s\n", res.Artifact)
	}
	fmt.Printf("Execution Time: %s\n", res.Elapsed)
	fmt.Printf("Result: %s\n", res.Message)
}

func init() {
	f := refreshCmd.Flags()
	f.StringVar(&refreshOpts.job, "job", "", "Run the named job from the jobs file")
	f.StringVar(&refreshOpts.source, "source", "", "Source dataset path")
	f.StringVar(&refreshOpts.target, "target", "", "Target dataset path")
	f.StringVar(&refreshOpts.method, "method", "COMPARE", "Refresh method (TRUNCATE or COMPARE)")
	f.StringVar(&refreshOpts.idField, "id-field", "", "Identifier field for COMPARE")
	f.IntVar(&refreshOpts.chunkSize, "chunk-size", 0, "Edits per applyEdits call (default from config)")
	f.BoolVar(&refreshOpts.json, "json", false, "Print the result as JSON")
	refreshOpts.creds.register(refreshCmd)
	refreshCmd.MarkFlagsMutuallyExclusive("job", "source")
	refreshCmd.MarkFlagsMutuallyExclusive("job", "target")

	RootCmd.AddCommand(refreshCmd)
}
