// Copyright (C) 2025 Scrivano AI (dev@scrivano.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/scrivano-ai/scrivano/pkg/chatclient"
	"github.com/scrivano-ai/scrivano/services/chat/config"
)

var (
	resumeConversationID string
	chatMode             string
	chatModel            string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: "Opens an interactive session against the scrivano server.\n" +
		"Replies stream in token by token. Type /copy to print the last\n" +
		"reply for the clipboard, /quit to leave.",
	Run: runChatCommand,
}

func init() {
	chatCmd.Flags().StringVar(&resumeConversationID, "resume", "", "Resume an existing conversation by id")
	chatCmd.Flags().StringVar(&chatMode, "mode", "chat", "Assistant mode: chat, write, or edit")
	chatCmd.Flags().StringVar(&chatModel, "model", "", "Override the server's default model")
	rootCmd.AddCommand(chatCmd)
}

func runChatCommand(cmd *cobra.Command, args []string) {
	cfg := config.Global

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	client := chatclient.NewClient(cfg.Client.ServerURL, cfg.Client.Token)
	session := chatclient.NewSession(client, chatclient.SessionOptions{
		ConversationID: resumeConversationID,
		Mode:           chatMode,
		Model:          chatModel,
		OnEvent: func(e chatclient.SessionEvent) {
			if e.Type == chatclient.SessionEventDelta {
				fmt.Print(e.Delta)
			}
		},
	})
	defer session.Close()

	fmt.Printf("Connected to %s. Type /quit to exit.\n", cfg.Client.ServerURL)
	if resumeConversationID != "" {
		printTranscript(ctx, client, resumeConversationID)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return
		case "/retry":
			if err := session.Retry(ctx); err != nil {
				reportSendError(err)
			}
			continue
		case "/copy":
			// Raw reply on stdout so it pipes cleanly into pbcopy or xclip.
			text, ok := session.LastAssistantText()
			if !ok {
				fmt.Fprintln(os.Stderr, "No assistant reply to copy yet.")
				continue
			}
			fmt.Println(text)
			continue
		}

		fmt.Println()
		if err := session.Send(ctx, line); err != nil {
			reportSendError(err)
			continue
		}
		fmt.Println()
	}
}

func printTranscript(ctx context.Context, client *chatclient.Client, conversationID string) {
	msgs, err := client.FetchMessages(ctx, conversationID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not load conversation history: %v\n", err)
		return
	}
	for _, m := range msgs {
		prefix := "You"
		if m.Role == chatclient.RoleAssistant {
			prefix = "Assistant"
		}
		fmt.Printf("\n%s: %s\n", prefix, m.Content)
	}
}

func reportSendError(err error) {
	switch {
	case errors.Is(err, chatclient.ErrEmptyMessage):
		fmt.Fprintln(os.Stderr, "Nothing to send.")
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(os.Stderr, "\nCancelled.")
	default:
		var se *chatclient.ServerError
		if errors.As(err, &se) {
			fmt.Fprintf(os.Stderr, "\nServer error: %s (type /retry to try again)\n", se.Message)
			return
		}
		fmt.Fprintf(os.Stderr, "\nSend failed: %v (type /retry to try again)\n", err)
	}
}
