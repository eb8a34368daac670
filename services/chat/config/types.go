// Copyright (C) 2025 Scrivano AI (dev@scrivano.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
)

// ScrivanoConfig is the full configuration for both the server daemon and
// the CLI client.
type ScrivanoConfig struct {
	// Server holds the daemon's listen and storage settings.
	Server ServerConfig `yaml:"server"`

	// Gateway holds the upstream model API settings.
	Gateway GatewayConfig `yaml:"gateway"`

	// Users maps bearer tokens to identities. Empty means tokenless local
	// access only.
	Users map[string]UserConfig `yaml:"users,omitempty"`

	// Client holds the CLI's connection settings.
	Client ClientConfig `yaml:"client"`
}

type ServerConfig struct {
	Port    int    `yaml:"port"`     // e.g. 8990
	DataDir string `yaml:"data_dir"` // badger database location
	LogDir  string `yaml:"log_dir,omitempty"`
}

type GatewayConfig struct {
	// APIKey is the process-wide default; per-user keys override it.
	APIKey  string `yaml:"api_key,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model"`
	// TitleModel generates conversation titles; defaults to Model.
	TitleModel string `yaml:"title_model,omitempty"`
}

type UserConfig struct {
	ID     string `yaml:"id"`
	APIKey string `yaml:"api_key,omitempty"`
}

type ClientConfig struct {
	ServerURL string `yaml:"server_url"`
	Token     string `yaml:"token,omitempty"`
}

func DefaultConfig() ScrivanoConfig {
	dataDir := "scrivano-data"
	logDir := ""
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".scrivano", "data")
		logDir = filepath.Join(home, ".scrivano", "logs")
	}

	return ScrivanoConfig{
		Server: ServerConfig{
			Port:    8990,
			DataDir: dataDir,
			LogDir:  logDir,
		},
		Gateway: GatewayConfig{
			Model: "gpt-4o-mini",
		},
		Client: ClientConfig{
			ServerURL: "http://localhost:8990",
		},
	}
}
