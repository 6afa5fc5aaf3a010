// Command agentic-worm is the CLI for the worm memory server. It drives demo
// scenarios and inspects server and memory state over the HTTP API.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var serverURL string

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "agentic-worm",
		Short: "Control and inspect the agentic worm memory system",
	}
	defaultServer := os.Getenv("WORM_SERVER_URL")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080"
	}
	root.PersistentFlags().StringVar(&serverURL, "server", defaultServer, "base URL of the worm memory server")

	root.AddCommand(demoCmd(), quickCmd(), statusCmd(), statsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func demoCmd() *cobra.Command {
	var scenario string
	var duration int

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a demo scenario on the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(scenario, duration)
		},
	}
	cmd.Flags().StringVar(&scenario, "type", "basic", "scenario: basic, food_seeking, obstacle_avoidance, learning")
	cmd.Flags().IntVar(&duration, "duration", 30, "scenario duration in seconds")
	return cmd
}

func quickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quick <scenario>",
		Short: "Run a short 10 second scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(args[0], 10)
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server health and world status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var health map[string]any
			if err := getJSON("/health", &health); err != nil {
				return fmt.Errorf("server unreachable at %s: %w", serverURL, err)
			}
			fmt.Printf("server:  %v\n", health["status"])

			var world map[string]any
			if err := getJSON("/api/world/status", &world); err != nil {
				return err
			}
			if wt, ok := world["world_time"].(string); ok {
				fmt.Printf("world:   %s\n", wt)
			}
			if d, ok := world["demo"].(map[string]any); ok {
				if running, _ := d["running"].(bool); running {
					fmt.Printf("demo:    running %v (worm %v)\n", d["scenario"], d["worm_id"])
				} else {
					fmt.Println("demo:    idle")
				}
			}
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <worm-id>",
		Short: "Show a worm's memory statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var stats map[string]any
			if err := getJSON("/api/worms/"+args[0]+"/stats", &stats); err != nil {
				return err
			}
			printStats(stats)
			return nil
		},
	}
}

func runScenario(scenario string, duration int) error {
	fmt.Printf("running %s for %ds...\n", scenario, duration)

	body, _ := json.Marshal(map[string]any{
		"scenario":         scenario,
		"duration_seconds": duration,
	})
	client := &http.Client{Timeout: time.Duration(duration+60) * time.Second}
	resp, err := client.Post(serverURL+"/api/demo", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("server unreachable at %s: %w", serverURL, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("demo failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var report struct {
		Scenario  string         `json:"scenario"`
		WormID    string         `json:"worm_id"`
		Highlight string         `json:"highlight"`
		Worm      map[string]any `json:"worm"`
		Stats     map[string]any `json:"memory_stats"`
	}
	if err := json.Unmarshal(data, &report); err != nil {
		return fmt.Errorf("parse report: %w", err)
	}

	fmt.Printf("\nscenario: %s\nworm:     %s\n", report.Scenario, report.WormID)
	if report.Highlight != "" {
		fmt.Printf("result:   %s\n", report.Highlight)
	}
	if report.Worm != nil {
		fmt.Printf("fitness:  %.2f  energy: %.2f  steps: %v\n",
			numField(report.Worm, "fitness"), numField(report.Worm, "energy"), report.Worm["steps"])
	}
	if report.Stats != nil {
		fmt.Println("\nmemory:")
		printStats(report.Stats)
	}
	return nil
}

func printStats(stats map[string]any) {
	fmt.Printf("  episodic:   %v\n", stats["episodic_count"])
	fmt.Printf("  spatial:    %v\n", stats["spatial_count"])
	fmt.Printf("  semantic:   %v\n", stats["semantic_count"])
	fmt.Printf("  procedural: %v\n", stats["procedural_count"])
	fmt.Printf("  success:    %.1f%%\n", numField(stats, "success_rate")*100)
	fmt.Printf("  confidence: %.1f%%\n", numField(stats, "memory_confidence")*100)
	if insights, ok := stats["insights"].([]any); ok && len(insights) > 0 {
		fmt.Println("  insights:")
		for _, insight := range insights {
			fmt.Printf("    - %v\n", insight)
		}
	}
}

func numField(m map[string]any, key string) float64 {
	if f, ok := m[key].(float64); ok {
		return f
	}
	return 0
}

func getJSON(path string, out any) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(serverURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
