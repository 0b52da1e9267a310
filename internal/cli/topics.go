package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"nameaffirm/internal/platform/kafka"
	"nameaffirm/internal/platform/kafka/producer"
)

// TopicsOptions holds flags for the topics commands.
type TopicsOptions struct {
	*RootOptions
	Brokers     []string
	Partitions  int32
	Replication int16
}

// NewTopicsCommand creates the topics command group.
func NewTopicsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topics",
		Short: "Manage the Kafka topics the service uses",
	}
	cmd.AddCommand(newTopicsEnsureCommand(&TopicsOptions{RootOptions: rootOpts}))
	return cmd
}

func newTopicsEnsureCommand(opts *TopicsOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ensure",
		Short: "Create the status, change and dead-letter topics if missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTopicsEnsure(opts, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Brokers, "brokers", nil, "seed brokers (defaults to KAFKA_BROKERS)")
	cmd.Flags().Int32Var(&opts.Partitions, "partitions", 0, "partitions per topic (defaults to KAFKA_TOPIC_PARTITIONS)")
	cmd.Flags().Int16Var(&opts.Replication, "replication", 0, "replication factor (defaults to KAFKA_TOPIC_REPLICATION)")

	return cmd
}

func runTopicsEnsure(opts *TopicsOptions, cmd *cobra.Command) error {
	kcfg := opts.Config.Kafka
	if len(opts.Brokers) > 0 {
		kcfg.Brokers = opts.Brokers
	}
	if opts.Partitions > 0 {
		kcfg.TopicPartitions = opts.Partitions
	}
	if opts.Replication > 0 {
		kcfg.TopicReplication = opts.Replication
	}
	if !kcfg.Enabled() {
		return NewExitError(ExitCommandError, "--brokers or KAFKA_BROKERS is required")
	}

	prod, err := producer.New(kcfg.Brokers)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create kafka client", err)
	}
	defer prod.Close()

	results, err := kafka.EnsureTopics(cmd.Context(), prod.Client(), kcfg.TopicPartitions, kcfg.TopicReplication, kcfg.ManagedTopics()...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to ensure topics", err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), results)
	}
	for _, res := range results {
		state := "exists"
		if res.Created {
			state = "created"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", res.Topic, state)
	}
	return nil
}
