package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"nameaffirm/internal/verifiedname/models"
	"nameaffirm/internal/verifiedname/service"
	id "nameaffirm/pkg/domain"
	dErrors "nameaffirm/pkg/domain-errors"
)

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	var verified bool

	cmd := &cobra.Command{
		Use:   "get <user-id>",
		Short: "Show a user's most recent verified name",
		Example: `  nameaffirmctl get 42
  nameaffirmctl get 42 --verified --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := id.ParseUserID(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid user id", err)
			}
			b, err := rootOpts.backend(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()

			rec, err := b.Service.GetMostRecent(cmd.Context(), userID, verified)
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				if rootOpts.Format == "json" {
					return writeJSON(cmd.OutOrStdout(), nil)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "No verified name found for user %s.\n", userID)
				return nil
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load verified name", err)
			}
			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), rec)
			}
			return writeRecords(cmd.OutOrStdout(), []*models.VerifiedName{rec})
		},
	}

	cmd.Flags().BoolVar(&verified, "verified", false, "only consider approved records")
	return cmd
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <user-id>",
		Short: "List every verified name for a user, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := id.ParseUserID(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid user id", err)
			}
			b, err := rootOpts.backend(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()

			recs, err := b.Service.History(cmd.Context(), userID)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load history", err)
			}
			if rootOpts.Format == "json" {
				if recs == nil {
					recs = []*models.VerifiedName{}
				}
				return writeJSON(cmd.OutOrStdout(), recs)
			}
			if len(recs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No verified names found for user %s.\n", userID)
				return nil
			}
			return writeRecords(cmd.OutOrStdout(), recs)
		},
	}
}

// CreateOptions holds flags for the create command.
type CreateOptions struct {
	*RootOptions
	VerifiedName      string
	ProfileName       string
	IDVAttempt        int64
	ProctoringAttempt int64
	Verified          bool
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CreateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create <user-id>",
		Short: "Append a verified name for a user",
		Example: `  nameaffirmctl create 42 --verified-name "Jo Doe" --profile-name "Jo"
  nameaffirmctl create 42 --verified-name "Jo Doe" --profile-name "Jo" --idv-attempt 7 --verified`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.VerifiedName, "verified-name", "", "verified name (required)")
	cmd.Flags().StringVar(&opts.ProfileName, "profile-name", "", "profile name at the time of verification (required)")
	cmd.Flags().Int64Var(&opts.IDVAttempt, "idv-attempt", 0, "linked identity-verification attempt id")
	cmd.Flags().Int64Var(&opts.ProctoringAttempt, "proctoring-attempt", 0, "linked proctored exam attempt id")
	cmd.Flags().BoolVar(&opts.Verified, "verified", false, "create the record as approved")
	_ = cmd.MarkFlagRequired("verified-name")
	_ = cmd.MarkFlagRequired("profile-name")
	cmd.MarkFlagsMutuallyExclusive("idv-attempt", "proctoring-attempt")

	return cmd
}

func runCreate(opts *CreateOptions, cmd *cobra.Command, rawUserID string) error {
	userID, err := id.ParseUserID(rawUserID)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid user id", err)
	}
	req := service.CreateRequest{
		UserID:       userID,
		VerifiedName: opts.VerifiedName,
		ProfileName:  opts.ProfileName,
		IsVerified:   opts.Verified,
	}
	if opts.IDVAttempt != 0 {
		attempt := id.AttemptID(opts.IDVAttempt)
		req.VerificationAttemptID = &attempt
	}
	if opts.ProctoringAttempt != 0 {
		attempt := id.AttemptID(opts.ProctoringAttempt)
		req.ProctoredExamAttemptID = &attempt
	}

	b, err := opts.backend(cmd.Context())
	if err != nil {
		return err
	}
	defer b.Close()

	rec, err := b.Service.Create(cmd.Context(), req)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create verified name", err)
	}
	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), rec)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created verified name %s (%s).\n", rec.ID, rec.Status)
	return nil
}
