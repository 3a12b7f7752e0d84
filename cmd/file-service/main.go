package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "file-service",
		Short: "personal cloud file service",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("specify a subcommand: serve or worker")
		},
	}

	root.AddCommand(newServeCommand(), newWorkerCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
