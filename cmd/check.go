package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run one check and print the result as JSON",
		Long: `Runs a single fetch, compare and alert cycle, prints the result and
exits. The exit code is 1 when the check ends in an error, which makes the
command usable from cron or a Cloud Run job.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp(cmd, appInstance)
			res, checkErr := appInstance.Check(cmd.Context())

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			if checkErr != nil {
				appInstance.Logger().Error("check failed", zap.Error(checkErr))
				return fmt.Errorf("check: %w", checkErr)
			}
			return nil
		},
	}
}
