package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cs244-team/sidekick/pkg"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show Resources",
	Long:  `Show the planned resources of the emulation without touching the host.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		h, err := pkg.NewHarness(cfg)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		switch class, _ := cmd.Flags().GetString("class"); class {
		case "nodes":
			h.ShowNodes(w)
		case "links":
			h.ShowLinks(w)
		case "addrs":
			h.ShowAddrs(w)
		case "procs":
			h.ShowProcs(w)
		default:
			return fmt.Errorf("invalid class %q", class)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), Version)
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(versionCmd)
	showCmd.Flags().String("class", "nodes", "Class of the element to show: nodes, links, addrs or procs")
}
