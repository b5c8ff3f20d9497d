// Package commands implements the nexusctl subcommands.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/nexus/pkg/apiclient"
)

var (
	serverURL string
	authToken string
	yesFlag   bool
)

// RootCmd is nexusctl's top-level command.
var RootCmd = &cobra.Command{
	Use:   "nexusctl",
	Short: "Operate a nexusd Control Plane API",
	Long: `nexusctl talks to a running nexusd's Control Plane API to register,
add, remove, online/offline/fault children, and inspect Nexus topology.`,
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8443", "Control Plane API base URL")
	RootCmd.PersistentFlags().StringVar(&authToken, "token", os.Getenv("NEXUSCTL_TOKEN"), "Operator bearer token (default: $NEXUSCTL_TOKEN)")
	RootCmd.PersistentFlags().BoolVarP(&yesFlag, "yes", "y", false, "Skip confirmation prompts for destructive commands")

	RootCmd.AddCommand(registerCmd)
	RootCmd.AddCommand(addChildCmd)
	RootCmd.AddCommand(removeChildCmd)
	RootCmd.AddCommand(onlineCmd)
	RootCmd.AddCommand(offlineCmd)
	RootCmd.AddCommand(faultCmd)
	RootCmd.AddCommand(openCmd)
	RootCmd.AddCommand(labelsCmd)
	RootCmd.AddCommand(showCmd)
	RootCmd.AddCommand(destroyCmd)
	RootCmd.AddCommand(completionCmd)
}

func client() *apiclient.Client {
	return apiclient.New(serverURL).WithToken(authToken)
}

func printNexus(n *apiclient.Nexus) {
	fmt.Printf("nexus %s: state=%s size=%d block_len=%d required_alignment=%d children=%d\n",
		n.Name, n.State, n.Size, n.BlockLen, n.RequiredAlignment, len(n.Children))
}
