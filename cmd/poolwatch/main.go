package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	envFile string
)

var rootCmd = &cobra.Command{
	Use:   "poolwatch",
	Short: "Blue/green pool failover and error-rate watcher",
	Long: "Poolwatch tails the load balancer access log, detects pool failover and elevated 5xx rates, " +
		"and sends deduplicated alerts via Shoutrrr. A marker file silences alerts during maintenance.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file loaded before the config")
	registerConfigFlags(rootCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
