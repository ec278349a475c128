/*
Copyright © 2025 Your Name

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"topicwire/internal/config"
	"topicwire/internal/logger"
)

var (
	cfgFile  string
	logLevel string
)

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "topicwire",
		Short: "Topicwire deduplicates a batch of news articles and groups them into topics.",
		Long: `Topicwire takes a batch of articles with embeddings, collapses near-duplicate
coverage into a single article carrying a viral score, clusters the survivors
with HDBSCAN and emits ranked topic groups for downstream summarization.

Examples:
  topicwire run batch.json
  topicwire run --json out/groups.json --publish morning.json evening.json
  topicwire dedup batch.json
  topicwire cluster --min-cluster-size 3 batch.json
  topicwire store stats`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return initConfig()
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.topicwire.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")

	rootCmd.AddCommand(NewRunCmd())
	rootCmd.AddCommand(NewDedupCmd())
	rootCmd.AddCommand(NewClusterCmd())
	rootCmd.AddCommand(NewStoreCmd())
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// initConfig reads in config file and ENV variables, then sets up logging.
func initConfig() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	logger.Init(logger.Options{Level: level, Format: cfg.Logging.Format})

	if cfgFile != "" {
		logger.Debug("Using config file", "path", cfgFile)
	}
	return nil
}
