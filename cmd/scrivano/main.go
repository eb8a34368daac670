// Copyright (C) 2025 Scrivano AI (dev@scrivano.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// scrivano is the command line client for the scrivano chat server.
package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/scrivano-ai/scrivano/services/chat/config"
)

var rootCmd = &cobra.Command{
	Use:   "scrivano",
	Short: "A streaming chat client for novelists",
	Long: "scrivano talks to a scrivanod server: send messages, watch the\n" +
		"reply stream in, and manage your conversations.",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if err := config.Load(); err != nil {
			log.Fatalf("Error loading config: %v", err)
		}
	}
}
