package main

import (
	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "newsight"}

	root.AddCommand(serveCMD(), askCMD())
	_ = root.Execute()
}
