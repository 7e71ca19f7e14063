package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/strata/config"
	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/schedule"
)

// ValidateCmd validates the schedule document without executing anything
var ValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the schedule document without running jobs",
	Long: `Load and validate the schedule document, then exit.

Checks that the document parses, that every recurrence policy is valid,
and that every enabled job has a registered handler. The database is
never opened.

Example:
  strata validate
  strata validate --schedule staging/schedule.yaml`,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	doc, err := schedule.LoadDocument(schedulePath(cmd, cfg), schedule.NewCronParser())
	if err != nil {
		return err
	}

	registry, err := buildRegistry(cfg, nil)
	if err != nil {
		return err
	}
	for _, job := range doc.Jobs {
		if !registry.Has(job.Name) {
			return errors.NewConfigurationf("no handler registered for job %q", job.Name)
		}
	}

	fmt.Println("Dry run mode - schedule validated successfully.")
	fmt.Printf("Loaded %d enabled jobs:\n", len(doc.Jobs))
	for _, job := range doc.Jobs {
		description := job.Description
		if description == "" {
			description = "(no description)"
		}
		fmt.Printf("  - %s: %s\n", job.Name, description)
	}
	return nil
}
