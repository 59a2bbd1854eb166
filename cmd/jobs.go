package cmd

import (
	"errors"
	"fmt"
	"sync"

	"geo-refresh/feature/refresh"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	allJobs      bool
	jobsParallel int
)

// jobsCmd is the parent command for jobs file operations.
var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List and run jobs from the jobs file",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := setup()
		if err != nil {
			return err
		}
		defer rt.logger.Sync()

		fmt.Printf("Jobs file: %s\n", rt.cfg.Refresh.JobsFile)
		fmt.Printf("Profiles: %v\n", rt.jobs.ProfileNames())
		for _, j := range rt.jobs.Jobs {
			fmt.Printf("- %s [%s] %s -> %s\n", j.Name, j.Method, j.Source, j.Target)
		}
		return nil
	},
}

var jobsRunCmd = &cobra.Command{
	Use:   "run [job...]",
	Short: "Run one or more jobs",
	Long: `Runs the named jobs, or every job with --all. Jobs run concurrently up to
--parallel at a time; a failing job does not stop the others.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := setup()
		if err != nil {
			return err
		}
		defer rt.logger.Sync()

		names := args
		if allJobs {
			names = nil
			for _, j := range rt.jobs.Jobs {
				names = append(names, j.Name)
			}
		}
		if len(names) == 0 {
			return errors.New("no jobs given, name them or use --all")
		}

		var (
			mu     sync.Mutex
			failed []string
		)
		g, ctx := errgroup.WithContext(cmd.Context())
		g.SetLimit(max(jobsParallel, 1))
		for _, name := range names {
			name := name
			g.Go(func() error {
				res, err := rt.refresh.RunJob(ctx, name)
				if res != nil {
					mu.Lock()
					printResult(res, false)
					mu.Unlock()
				}
				if err == nil && res.Success {
					return nil
				}
				if err != nil && !refresh.IsAbort(err) {
					rt.logger.Error("Job failed", zap.String("job", name), zap.Error(err))
				}
				mu.Lock()
				failed = append(failed, name)
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		if len(failed) > 0 {
			return fmt.Errorf("%d of %d jobs failed: %v", len(failed), len(names), failed)
		}
		return nil
	},
}

func init() {
	jobsRunCmd.Flags().BoolVar(&allJobs, "all", false, "Run every job in the jobs file")
	jobsRunCmd.Flags().IntVar(&jobsParallel, "parallel", 1, "Number of jobs run at the same time")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsRunCmd)
	RootCmd.AddCommand(jobsCmd)
}
