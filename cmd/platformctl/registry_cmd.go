package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nimbusline/platform-core/internal/registry"
)

func newRegistryCommand() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "registry",
		Short: "inspect and validate the ownership registry",
	}

	inspect := &cobra.Command{
		Use:   "inspect",
		Short: "load the registry YAML and print each topic's producer and consumers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("platformctl: read registry file: %w", err)
			}

			reg, err := registry.Load(data)
			if err != nil {
				return fmt.Errorf("platformctl: load registry: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "registry loaded successfully")

			return printTopics(cmd, reg)
		},
	}
	inspect.Flags().StringVarP(&path, "file", "f", "registry.yaml", "path to the registry YAML document")

	cmd.AddCommand(inspect)

	return cmd
}

func printTopics(cmd *cobra.Command, reg *registry.Registry) error {
	for _, topic := range reg.Topics() {
		producer, err := reg.ProducerOf(topic)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "topic=%s producer=%s consumers=%v\n", topic, producer, reg.ConsumersOf(topic))
	}

	return nil
}
