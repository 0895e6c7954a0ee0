package main

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/omarluq/aoai-relay/internal/config"
)

var statusVerbose bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check if the aoai-relay server is running",
	Long: `Check the health of a running aoai-relay server by querying its
/healthz endpoint. With --verbose, also print the /diag snapshot.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVarP(&statusVerbose, "verbose", "v", false,
		"also print rate-limit, gate, and breaker diagnostics")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}

	//nolint:noctx // Simple health check doesn't need context propagation
	resp, err := client.Get(fmt.Sprintf("http://%s/healthz", cfg.Server.Listen))
	if err != nil {
		fmt.Printf("✗ aoai-relay is not running (%s)\n", cfg.Server.Listen)
		return fmt.Errorf("server not reachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		fmt.Printf("✗ aoai-relay returned unexpected status: %d\n", resp.StatusCode)
		return fmt.Errorf("health check failed with status %d", resp.StatusCode)
	}

	fmt.Printf("✓ aoai-relay is running (%s)\n", cfg.Server.Listen)

	if !statusVerbose {
		return nil
	}
	return printDiag(client, cfg.Server.Listen)
}

// printDiag renders the /diag snapshot in a terse human-readable form.
func printDiag(client *http.Client, listen string) error {
	//nolint:noctx // Diagnostics poll shares the health check's simplicity
	resp, err := client.Get(fmt.Sprintf("http://%s/diag", listen))
	if err != nil {
		return fmt.Errorf("diag not reachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read diag response: %w", err)
	}

	snapshot := gjson.ParseBytes(body)
	fmt.Printf("  breaker:  %s\n", snapshot.Get("breaker").Str)
	fmt.Printf("  gate:     %d/%d permits free, %d waiting\n",
		snapshot.Get("gate.available").Int(),
		snapshot.Get("gate.max_permits").Int(),
		snapshot.Get("gate.waiting").Int())
	fmt.Printf("  idem:     %d cached entries\n", snapshot.Get("idempotency.entries").Int())
	fmt.Printf("  secrets:  endpoint=%t key=%t\n",
		snapshot.Get("secrets.endpoint").Bool(),
		snapshot.Get("secrets.key").Bool())

	snapshot.Get("user_buckets").ForEach(func(_, bucket gjson.Result) bool {
		fmt.Printf("  bucket:   %s %.1f/%d tokens\n",
			bucket.Get("key").Str,
			bucket.Get("tokens").Num,
			bucket.Get("capacity").Int())
		return true
	})

	return nil
}
