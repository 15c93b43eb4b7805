package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var healthAddr string

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check a running server's readiness endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		return checkHealth(cmd, &http.Client{Timeout: 5 * time.Second}, healthAddr)
	},
}

func init() {
	healthCmd.Flags().StringVar(&healthAddr, "addr", "http://localhost:8080", "server address")
	rootCmd.AddCommand(healthCmd)
}

func checkHealth(cmd *cobra.Command, client *http.Client, addr string) error {
	resp, err := client.Get(strings.TrimRight(addr, "/") + "/ready")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "OK")
	return nil
}
