package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/R2i2Labs/fin-agent-ui/internal/dataset"
)

// NewDatasetsCmd lists the daemon's datasets, optionally ranked against a
// search query.
func NewDatasetsCmd(opts *Options) *cobra.Command {
	var search string

	cmd := &cobra.Command{
		Use:   "datasets",
		Short: "List available CSV datasets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			baseURL := daemonURL(cfg.Server.Addr)
			out := cmd.OutOrStdout()

			if strings.TrimSpace(search) != "" {
				var resp struct {
					Matches []dataset.Match `json:"matches"`
				}
				target := baseURL + "/datasets/search?q=" + url.QueryEscape(search)
				if err := getJSON(cmd.Context(), target, &resp); err != nil {
					return err
				}
				if len(resp.Matches) == 0 {
					fmt.Fprintln(out, "No matching datasets.")
					return nil
				}
				for _, m := range resp.Matches {
					fmt.Fprintf(out, "%-30s %.2f  [%s]\n", m.Filename, m.Score, strings.Join(m.Columns, ", "))
				}
				return nil
			}

			var resp struct {
				Datasets []string `json:"datasets"`
			}
			if err := getJSON(cmd.Context(), baseURL+"/datasets", &resp); err != nil {
				return err
			}
			if len(resp.Datasets) == 0 {
				fmt.Fprintln(out, "No datasets available.")
				return nil
			}
			for _, name := range resp.Datasets {
				fmt.Fprintln(out, name)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&search, "search", "", "Rank datasets against a natural language query")
	return cmd
}

func getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeDetail(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
