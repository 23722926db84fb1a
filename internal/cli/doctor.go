package cli

import (
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"
)

// NewDoctorCmd returns a health-check command validating config and environment.
func NewDoctorCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Validate configuration and environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config OK. Providers: %d, models: %d\n", len(cfg.Providers), len(cfg.Models))

			if path, err := exec.LookPath(cfg.Sandbox.Python); err != nil {
				fmt.Fprintf(out, "Python: %s not found (%v)\n", cfg.Sandbox.Python, err)
			} else {
				fmt.Fprintf(out, "Python: %s\n", path)
			}

			if info, err := os.Stat(cfg.Paths.DatasetsDir); err != nil {
				fmt.Fprintf(out, "Datasets dir: %s missing\n", cfg.Paths.DatasetsDir)
			} else if !info.IsDir() {
				fmt.Fprintf(out, "Datasets dir: %s is not a directory\n", cfg.Paths.DatasetsDir)
			} else {
				fmt.Fprintf(out, "Datasets dir: %s\n", cfg.Paths.DatasetsDir)
			}

			fmt.Fprintf(out, "Database: %s\n", cfg.Storage.DBPath)

			client := &http.Client{Timeout: 2 * time.Second}
			resp, err := client.Get(daemonURL(cfg.Server.Addr) + "/status")
			if err != nil {
				fmt.Fprintf(out, "Daemon: not reachable at %s\n", cfg.Server.Addr)
			} else {
				resp.Body.Close()
				fmt.Fprintf(out, "Daemon: reachable (%s), metrics: %v\n", resp.Status, cfg.Server.MetricsEnabled)
			}
			return nil
		},
	}
}
