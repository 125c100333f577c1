package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"rental_dashboard/internal/invalidation"
)

func newGraphCmd(c *cli) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Validate and print the cache invalidation graph",
		RunE: func(cmd *cobra.Command, _ []string) error {
			graph, err := loadGraph(file)
			if err != nil {
				return err
			}
			out, err := renderGraph(graph)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			fmt.Fprintf(cmd.OutOrStdout(), "%d groups, %d mutations: complete\n", len(graph.GroupNames()), len(graph.Mutations()))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "graph YAML to check instead of the built-in one")
	return cmd
}

// loadGraph parses and validates file, or the embedded graph when file is "".
func loadGraph(file string) (*invalidation.Graph, error) {
	if file == "" {
		return invalidation.Default()
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	return invalidation.Load(data)
}
