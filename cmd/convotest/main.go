// Command convotest runs a conversation test definition from a file without
// the HTTP service or a database.
package main

import (
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"

	"github.com/qaforge/convotest/common"
)

var rootCmd = &cobra.Command{
	Use:           "convotest",
	Short:         "Drive simulated conversations against an agent endpoint and judge them",
	Version:       common.Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
