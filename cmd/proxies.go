package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/filmlens/scraper-cli/internal/proxy"
)

var proxiesCmd = &cobra.Command{
	Use:   "proxies",
	Short: "Verify the proxy pool and print usage statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		pool, err := proxy.New(cfg.Proxy)
		if err != nil {
			return err
		}
		if err := pool.Initialize(cmd.Context()); err != nil {
			return err
		}

		stats := pool.Statistics()
		data, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal statistics")
		}
		_, _ = os.Stdout.Write(append(data, '\n'))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(proxiesCmd)
}
