// Copyright (C) 2025 Scrivano AI (dev@scrivano.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/scrivano-ai/scrivano/pkg/chatclient"
	"github.com/scrivano-ai/scrivano/services/chat/config"
)

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "Manage conversations",
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your conversations, most recent first",
	Run: func(cmd *cobra.Command, args []string) {
		client := newAPIClient()
		convs, err := client.ListConversations(context.Background())
		if err != nil {
			log.Fatalf("Error listing conversations: %v", err)
		}
		if len(convs) == 0 {
			fmt.Println("No conversations yet. Start one with: scrivano chat")
			return
		}
		for _, c := range convs {
			updated := time.UnixMilli(c.UpdatedAt).Format("2006-01-02 15:04")
			fmt.Printf("%s  %s  %s\n", c.ID, updated, c.Title)
		}
	},
}

var conversationsDeleteCmd = &cobra.Command{
	Use:   "delete <conversation-id>",
	Short: "Delete a conversation and all its messages",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := newAPIClient()
		if err := client.DeleteConversation(context.Background(), args[0]); err != nil {
			log.Fatalf("Error deleting conversation: %v", err)
		}
		fmt.Println("Deleted.")
	},
}

func newAPIClient() *chatclient.Client {
	cfg := config.Global
	return chatclient.NewClient(cfg.Client.ServerURL, cfg.Client.Token)
}

func init() {
	conversationsCmd.AddCommand(conversationsListCmd)
	conversationsCmd.AddCommand(conversationsDeleteCmd)
	rootCmd.AddCommand(conversationsCmd)
}
