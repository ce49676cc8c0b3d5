package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// configPath is the optional YAML configuration file
	configPath string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "memorymap",
	Short: "Memory map clustering backend",
	Long: `memorymap serves clustered note markers, spiderfy disclosure and the
globe overview for the memory map frontend.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(importCmd)
}
