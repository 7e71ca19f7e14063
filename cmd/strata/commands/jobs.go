package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/strata/schedule"
)

// JobsCmd lists the synced schedule
var JobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List scheduled jobs and their next runs",
	Long: `List every job in the scheduled_jobs table with its recurrence
policy and run state, in schedule document order.

The table reflects the last sync; run 'strata run' or 'strata once' to
sync the schedule document first.`,
	RunE: runJobs,
}

func runJobs(cmd *cobra.Command, args []string) error {
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	store := schedule.NewStore(database, schedule.NewCronParser())
	jobList, err := store.ListJobs()
	if err != nil {
		return err
	}
	if len(jobList) == 0 {
		fmt.Println("No jobs synced. Run 'strata run' or 'strata once' to sync the schedule document.")
		return nil
	}

	fmt.Printf("%-16s %-22s %-20s %-20s %s\n", "NAME", "SCHEDULE", "NEXT RUN", "LAST RUN", "DESCRIPTION")
	for _, job := range jobList {
		lastRun := "-"
		if job.LastRunAt != nil {
			lastRun = job.LastRunAt.UTC().Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%-16s %-22s %-20s %-20s %s\n",
			job.Name,
			describePolicy(job.Policy.Spec()),
			job.NextRunAt.UTC().Format("2006-01-02 15:04:05"),
			lastRun,
			job.Description,
		)
	}
	return nil
}

// describePolicy renders a recurrence descriptor as a short table cell
func describePolicy(spec schedule.PolicySpec) string {
	switch spec.Type {
	case schedule.PolicyInterval:
		return fmt.Sprintf("every %s", (time.Duration(spec.Seconds) * time.Second).String())
	case schedule.PolicyDaily:
		return fmt.Sprintf("daily at %s", spec.Time)
	case schedule.PolicyWeekly:
		return fmt.Sprintf("weekly %s %s", spec.Weekday, spec.Time)
	case schedule.PolicyCron:
		return fmt.Sprintf("cron %s", spec.Expression)
	default:
		return spec.Type
	}
}
