package main

import (
	"fmt"

	jsdos "github.com/aperturerobotics/go-jsdos"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of jsdos",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "jsdos version %s (engine protocol %d)\n", jsdos.Version, jsdos.ProtocolVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
