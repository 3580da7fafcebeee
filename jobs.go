package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/drivegram/internal/config"
	"github.com/tonimelisma/drivegram/internal/state"
)

var (
	flagJobsUser  int64
	flagJobsLimit int
)

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Show recently finished jobs",
		Args:  cobra.NoArgs,
		RunE:  runJobs,
	}

	cmd.Flags().Int64Var(&flagJobsUser, "user", 0, "only show jobs of this Telegram user")
	cmd.Flags().IntVar(&flagJobsLimit, "limit", 20, "maximum number of jobs")

	return cmd
}

func runJobs(cmd *cobra.Command, _ []string) error {
	cfg := resolvedCfg
	ctx := cmd.Context()

	if cfg.Storage.Backend != config.BackendSQLite {
		return errNoLedger
	}

	logger, closeLog, err := buildLogger(&cfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()

	db, err := state.Open(ctx, cfg.Storage.DatabasePath(), logger)
	if err != nil {
		return err
	}
	defer db.Close()

	var userID string
	if flagJobsUser != 0 {
		userID = strconv.FormatInt(flagJobsUser, 10)
	}

	jobs, err := db.RecentJobs(ctx, userID, flagJobsLimit)
	if err != nil {
		return err
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(jobs)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs recorded.")
		return nil
	}

	rows := make([][]string, len(jobs))
	for i := range jobs {
		rows[i] = jobRow(&jobs[i])
	}

	printTable(os.Stdout, []string{"STARTED", "USER", "OUTCOME", "FILES", "DURATION", "LINK"}, rows)

	return nil
}

func jobRow(j *state.JobRecord) []string {
	files := fmt.Sprintf("%d/%d", j.Succeeded, j.Total)
	if j.Failed > 0 {
		files += fmt.Sprintf(" (%d failed)", j.Failed)
	}

	return []string{
		formatTime(j.StartedAt),
		j.UserID,
		j.Outcome,
		files,
		formatDuration(j.Duration()),
		j.Link,
	}
}
