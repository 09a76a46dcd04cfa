// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	serverURL string
	authToken string
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "teleimport",
	Short: "Chat history import tool",
	Long: `teleimport - import chat export archives into a conversation

Reads a zip export produced by another messaging app, uploads the contained
media with bounded concurrency and commits the import in one transaction.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "https://api.example.org", "Import API base URL")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "Bearer token for the import API")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(inspectCmd)
}

func newLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
