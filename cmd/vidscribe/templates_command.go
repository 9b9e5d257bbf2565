package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vidscribe/internal/synthesis"
)

func newTemplatesCommand() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:         "templates",
		Short:       "List transcript post-processing templates",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := synthesis.LoadCatalog()
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, catalog.Templates)
			}
			rows := make([][]string, 0, len(catalog.Templates))
			for _, t := range catalog.Templates {
				name := t.Name
				if name == synthesis.DefaultTemplate {
					name += " (default)"
				}
				rows = append(rows, []string{name, t.Title, t.Description})
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, renderTable(tableSpec{
				headers: []string{"Template", "Title", "Description"},
				wrap:    []int{3},
			}, rows))
			fmt.Fprintln(out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
