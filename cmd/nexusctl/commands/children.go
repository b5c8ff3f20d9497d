package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/nexus/internal/cli/prompt"
)

var addChildCmd = &cobra.Command{
	Use:   "add-child <nexus-name> <uri>",
	Short: "Create and add a new child to an Open or Degraded Nexus",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := client().AddChild(args[0], args[1])
		if err != nil {
			return fmt.Errorf("add child: %w", err)
		}
		printNexus(n)
		return nil
	},
}

var removeChildCmd = &cobra.Command{
	Use:   "remove-child <nexus-name> <uri>",
	Short: "Remove a Closed child and destroy its backing device",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ok, err := prompt.ConfirmWithForce(fmt.Sprintf("remove child %s from %s", args[1], args[0]), yesFlag)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("aborted")
			return nil
		}
		if err := client().RemoveChild(args[0], args[1]); err != nil {
			return fmt.Errorf("remove child: %w", err)
		}
		fmt.Printf("removed %s from %s\n", args[1], args[0])
		return nil
	},
}

var onlineCmd = &cobra.Command{
	Use:   "online <nexus-name> <uri>",
	Short: "Reopen a Closed child",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := client().OnlineChild(args[0], args[1])
		if err != nil {
			return fmt.Errorf("online child: %w", err)
		}
		printNexus(n)
		return nil
	},
}

var offlineCmd = &cobra.Command{
	Use:   "offline <nexus-name> <uri>",
	Short: "Close an Open child",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := client().OfflineChild(args[0], args[1])
		if err != nil {
			return fmt.Errorf("offline child: %w", err)
		}
		printNexus(n)
		return nil
	},
}

var faultCmd = &cobra.Command{
	Use:   "fault <nexus-name> <uri>",
	Short: "Mark a child Faulted",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := client().FaultChild(args[0], args[1])
		if err != nil {
			return fmt.Errorf("fault child: %w", err)
		}
		printNexus(n)
		return nil
	},
}

var openCmd = &cobra.Command{
	Use:   "open <nexus-name>",
	Short: "Transactionally open every registered child",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := client().Open(args[0])
		if err != nil {
			return fmt.Errorf("open: %w", err)
		}
		printNexus(n)
		return nil
	},
}

var labelsCmd = &cobra.Command{
	Use:   "labels <nexus-name>",
	Short: "Probe every open child's on-disk label and print the common value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		label, err := client().Labels(args[0])
		if err != nil {
			return fmt.Errorf("labels: %w", err)
		}
		fmt.Println(label)
		return nil
	},
}

var destroyCmd = &cobra.Command{
	Use:   "destroy <nexus-name>",
	Short: "Destroy every child and tear down the Nexus",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ok, err := prompt.ConfirmWithForce(fmt.Sprintf("destroy nexus %s and all its children", args[0]), yesFlag)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("aborted")
			return nil
		}
		if err := client().DestroyNexus(args[0]); err != nil {
			return fmt.Errorf("destroy: %w", err)
		}
		fmt.Printf("destroyed %s\n", args[0])
		return nil
	},
}
