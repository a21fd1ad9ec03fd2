package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"scrape", "migrate", "proxies", "serve"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "scraper-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestScrapeCommand_Flags(t *testing.T) {
	moviesFlag := scrapeCmd.Flags().Lookup("movies")
	require.NotNil(t, moviesFlag, "scrape command should have --movies flag")
	assert.Equal(t, "0", moviesFlag.DefValue)

	backendFlag := scrapeCmd.Flags().Lookup("backend")
	require.NotNil(t, backendFlag, "scrape command should have --backend flag")
	assert.Equal(t, "goquery", backendFlag.DefValue)

	noProxyFlag := scrapeCmd.Flags().Lookup("no-proxy")
	require.NotNil(t, noProxyFlag, "scrape command should have --no-proxy flag")
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}
