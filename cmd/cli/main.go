package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ghostagent/ghost/internal/interfaces/cli"
)

const cliVersion = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "ghost-cli [message]",
		Short: "Terminal client for a running Ghost daemon",
		Long: "Interactive terminal client for Ghost. Connects to the daemon's\n" +
			"OpenAI-compatible API and streams replies as they are produced.",
		Args: cobra.ArbitraryArgs,
		RunE: runClient,
	}

	f := rootCmd.Flags()
	f.String("host", "127.0.0.1", "daemon host")
	f.Int("port", 8000, "daemon port")
	f.String("api-key", "", "API key (env GHOST_API_KEY)")
	f.Bool("no-memory", false, "do not write this conversation to long-term memory")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ghost-cli v%s\n", cliVersion)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runClient(cmd *cobra.Command, args []string) error {
	host, _ := cmd.Flags().GetString("host")
	port, _ := cmd.Flags().GetInt("port")
	apiKey, _ := cmd.Flags().GetString("api-key")
	noMemory, _ := cmd.Flags().GetBool("no-memory")

	if apiKey == "" {
		apiKey = os.Getenv("GHOST_API_KEY")
	}

	endpoint := fmt.Sprintf("http://%s:%d", host, port)
	client := cli.NewClient(endpoint, apiKey)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := client.Health(ctx)
	if err != nil {
		return fmt.Errorf("no Ghost daemon at %s: %w", endpoint, err)
	}

	return cli.RunUI(cli.UIConfig{
		Client: client,
		Info: cli.BannerInfo{
			Model:    health.Model,
			Endpoint: endpoint,
			Pools:    health.Pools,
			Uptime:   health.UptimeSeconds,
			Sandbox:  health.SandboxBackend,
		},
		InitPrompt: strings.Join(args, " "),
		NoMemory:   noMemory,
	})
}
