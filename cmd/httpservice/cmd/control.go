package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/sirosfoundation/go-httpservice/internal/api"
	"github.com/sirosfoundation/go-httpservice/internal/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the server state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return lifecycleRequest(cmd.OutOrStdout(), "GET", "/admin/status", nil)
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the configured server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return lifecycleRequest(cmd.OutOrStdout(), "POST", "/admin/start", nil)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return lifecycleRequest(cmd.OutOrStdout(), "POST", "/admin/stop", nil)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Update the server configuration",
	Long: `Update the server configuration. Only the flags given are changed.
A running server is restarted with the new configuration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := configRequestFromFlags(cmd)
		if err != nil {
			return err
		}
		return lifecycleRequest(cmd.OutOrStdout(), "PUT", "/admin/config", req)
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List recent lifecycle events",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client := NewClient(adminURL, adminToken)
		data, err := client.Request("GET", "/admin/events?limit="+strconv.Itoa(limit), nil)
		if err != nil {
			return err
		}

		if output == "json" {
			return printJSON(cmd.OutOrStdout(), data)
		}

		var resp struct {
			Events []storage.Record `json:"events"`
		}
		if err := json.Unmarshal(data, &resp); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}

		if len(resp.Events) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No events found.")
			return nil
		}

		headers := []string{"TIME", "EVENT", "STATE", "CONFIGURATION"}
		rows := make([][]string, len(resp.Events))
		for i, e := range resp.Events {
			rows[i] = []string{e.Timestamp.Format(time.RFC3339), e.Event, e.State, e.Configuration}
		}
		printTable(cmd.OutOrStdout(), headers, rows)
		return nil
	},
}

func lifecycleRequest(w io.Writer, method, path string, body interface{}) error {
	client := NewClient(adminURL, adminToken)
	data, err := client.Request(method, path, body)
	if err != nil {
		return err
	}

	if output == "json" {
		return printJSON(w, data)
	}

	var status api.AdminStatusResponse
	if err := json.Unmarshal(data, &status); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	printStatus(w, &status)
	return nil
}

func printStatus(w io.Writer, s *api.AdminStatusResponse) {
	fmt.Fprintf(w, "Service:   %s %s\n", s.Service, s.Version)
	fmt.Fprintf(w, "State:     %s\n", s.State)
	if s.Configuration == nil {
		fmt.Fprintln(w, "Config:    <none>")
		return
	}
	c := s.Configuration
	if c.HTTPEnabled {
		fmt.Fprintf(w, "HTTP:      %s\n", net.JoinHostPort(c.Host, strconv.Itoa(c.HTTPPort)))
	}
	if c.HTTPSecureEnabled {
		fmt.Fprintf(w, "HTTPS:     %s (%s)\n", net.JoinHostPort(c.Host, strconv.Itoa(c.HTTPSecurePort)), c.SSLKeystore)
	}
	fmt.Fprintf(w, "Temp dir:  %s\n", c.TempDir)
	fmt.Fprintf(w, "Sessions:  %ds timeout\n", c.SessionTimeout)
}

func configRequestFromFlags(cmd *cobra.Command) (*api.ConfigurationRequest, error) {
	req := &api.ConfigurationRequest{}
	flags := cmd.Flags()

	if flags.Changed("host") {
		v, _ := flags.GetString("host")
		req.Host = &v
	}
	if flags.Changed("http") {
		v, _ := flags.GetBool("http")
		req.HTTPEnabled = &v
	}
	if flags.Changed("http-port") {
		v, _ := flags.GetInt("http-port")
		req.HTTPPort = &v
	}
	if flags.Changed("https") {
		v, _ := flags.GetBool("https")
		req.HTTPSecureEnabled = &v
	}
	if flags.Changed("https-port") {
		v, _ := flags.GetInt("https-port")
		req.HTTPSecurePort = &v
	}
	if flags.Changed("keystore") {
		v, _ := flags.GetString("keystore")
		req.SSLKeystore = &v
	}
	if flags.Changed("keystore-password") {
		v, _ := flags.GetString("keystore-password")
		req.SSLPassword = &v
	}
	if flags.Changed("key-password") {
		v, _ := flags.GetString("key-password")
		req.SSLKeyPassword = &v
	}
	if flags.Changed("temp-dir") {
		v, _ := flags.GetString("temp-dir")
		req.TempDir = &v
	}
	if flags.Changed("session-timeout") {
		v, _ := flags.GetInt("session-timeout")
		req.SessionTimeout = &v
	}

	if *req == (api.ConfigurationRequest{}) {
		return nil, fmt.Errorf("no configuration flags given")
	}
	return req, nil
}

func init() {
	configCmd.Flags().String("host", "", "Listen host")
	configCmd.Flags().Bool("http", true, "Enable plain HTTP")
	configCmd.Flags().Int("http-port", 0, "HTTP port")
	configCmd.Flags().Bool("https", false, "Enable HTTPS")
	configCmd.Flags().Int("https-port", 0, "HTTPS port")
	configCmd.Flags().String("keystore", "", "PKCS#12 or PEM keystore file")
	configCmd.Flags().String("keystore-password", "", "Keystore password")
	configCmd.Flags().String("key-password", "", "Private key password")
	configCmd.Flags().String("temp-dir", "", "Temporary directory")
	configCmd.Flags().Int("session-timeout", 0, "Session idle timeout in seconds, 0 disables expiry")

	eventsCmd.Flags().Int("limit", api.DefaultEventLimit, "Maximum number of events, 0 for all")

	rootCmd.AddCommand(statusCmd, startCmd, stopCmd, configCmd, eventsCmd)
}
