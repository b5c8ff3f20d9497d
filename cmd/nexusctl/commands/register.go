package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var registerCmd = &cobra.Command{
	Use:   "register <nexus-name> <size> <uri>...",
	Short: "Create a Nexus and register one or more children",
	Long: `Create a brand-new Nexus of the given logical size (in bytes) and
register every following URI as a Child in Init state.

Examples:
  nexusctl register nexus0 1073741824 aio:///data/disk0.img aio:///data/disk1.img`,
	Args: cobra.MinimumNArgs(3),
	RunE: runRegister,
}

func runRegister(cmd *cobra.Command, args []string) error {
	name, sizeArg, uris := args[0], args[1], args[2:]

	var size uint64
	if _, err := fmt.Sscanf(sizeArg, "%d", &size); err != nil {
		return fmt.Errorf("invalid size %q: %w", sizeArg, err)
	}

	c := client()
	if err := c.CreateNexus(name, size); err != nil {
		return fmt.Errorf("create nexus: %w", err)
	}
	n, err := c.RegisterChildren(name, uris)
	if err != nil {
		return fmt.Errorf("register children: %w", err)
	}
	printNexus(n)
	return nil
}
