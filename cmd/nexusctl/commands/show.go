package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/nexus/internal/cli/output"
)

var showCmd = &cobra.Command{
	Use:   "show <nexus-name>",
	Short: "Show a Nexus's topology as a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := client().GetNexus(args[0])
		if err != nil {
			return fmt.Errorf("show: %w", err)
		}

		summary := output.NewTableData("NAME", "SIZE", "STATE", "BLOCK_LEN", "REQUIRED_ALIGNMENT", "CHILDREN")
		summary.AddRow(n.Name, fmt.Sprintf("%d", n.Size), n.State, fmt.Sprintf("%d", n.BlockLen), fmt.Sprintf("%d", n.RequiredAlignment), fmt.Sprintf("%d", len(n.Children)))
		if err := output.PrintTable(os.Stdout, summary); err != nil {
			return err
		}

		if len(n.Children) == 0 {
			return nil
		}

		fmt.Println()
		children := output.NewTableData("URI", "STATE")
		for _, c := range n.Children {
			children.AddRow(c.Name, c.State)
		}
		return output.PrintTable(os.Stdout, children)
	},
}
