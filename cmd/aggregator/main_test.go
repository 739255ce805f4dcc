package main

import (
	"testing"

	"github.com/yozoyaa/roblox-proxy-vercel/internal/config"
)

func TestBuildClients(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.UpstreamConfig
	}{
		{"direct mode", config.UpstreamConfig{APIKey: "key", Cookie: "abc"}},
		{"gateway mode", config.UpstreamConfig{GatewayURL: "https://relay.example.com/api/proxy"}},
		{"no credentials", config.UpstreamConfig{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			getClient, postClient, err := buildClients(&config.Config{Upstream: tt.cfg})
			if err != nil {
				t.Fatalf("buildClients() error = %v", err)
			}
			if getClient == nil || postClient == nil {
				t.Error("buildClients() returned nil client")
			}
		})
	}
}
