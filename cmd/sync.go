package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/content-control-plane/ccp/internal/operation"
)

type ensureParams struct {
	commonParams
	branch string
}

func newEnsureCommand() *cobra.Command {
	params := ensureParams{commonParams: newCommonParams()}

	cmd := &cobra.Command{
		Use:   "ensure",
		Short: "Create the working copy if needed and check out the content branch",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			svc, err := params.open(ctx, params.logger())
			if err != nil {
				return err
			}
			defer svc.Close()

			if err := svc.Ensure(ctx, params.branch); err != nil {
				return err
			}

			branch := params.branch
			if branch == "" {
				branch = svc.Config().Repository.Branch
			}

			fmt.Fprintf(cmd.OutOrStdout(), "working copy on branch %s\n", branch)
			return nil
		},
	}

	params.register(cmd.Flags())
	cmd.Flags().StringVarP(&params.branch, "branch", "b", "", "branch to check out instead of the configured one")

	return cmd
}

func newUpdateCommand() *cobra.Command {
	params := newCommonParams()

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Pull the content branch into the working copy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			svc, err := params.open(ctx, params.logger())
			if err != nil {
				return err
			}
			defer svc.Close()

			return svc.Update(ctx)
		},
	}

	params.register(cmd.Flags())

	return cmd
}

type recordParams struct {
	commonParams
	message string
	removed []string
}

func newRecordCommand() *cobra.Command {
	params := recordParams{commonParams: newCommonParams()}

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Commit the changes of the working copy as one operation",
		Long: `Record updates the working copy, removes the given paths and commits every
change of the working copy, including edits made to it directly, with the
given message. The update fails when the content branch moved since the
working copy was last updated.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			svc, err := params.open(ctx, params.logger())
			if err != nil {
				return err
			}
			defer svc.Close()

			// A stale working copy is reported with the command that updates it.
			remedy := "ccpctl update --config " + params.configFile

			return svc.Do(ctx, remedy, func(ctx context.Context, op *operation.Operation) error {
				return svc.Record(ctx, op, params.message, params.removed...)
			})
		},
	}

	params.register(cmd.Flags())
	cmd.Flags().StringVarP(&params.message, "message", "m", "", "description of the change")
	cmd.Flags().StringArrayVar(&params.removed, "remove", nil, "path to remove, relative to the working copy (repeatable)")

	return cmd
}
