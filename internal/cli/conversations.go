package cli

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/R2i2Labs/fin-agent-ui/internal/store"
)

// NewConversationsCmd manages stored conversations through the daemon.
func NewConversationsCmd(opts *Options) *cobra.Command {
	var agentID string

	cmd := &cobra.Command{
		Use:   "conversations",
		Short: "Manage stored conversations",
	}
	cmd.PersistentFlags().StringVar(&agentID, "agent", "financial_agent", "Agent whose conversations to manage")

	list := &cobra.Command{
		Use:   "list",
		Short: "List conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			var resp struct {
				Conversations []store.Conversation `json:"conversations"`
			}
			url := fmt.Sprintf("%s/%s/conversations", daemonURL(cfg.Server.Addr), agentID)
			if err := getJSON(cmd.Context(), url, &resp); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(resp.Conversations) == 0 {
				fmt.Fprintln(out, "No conversations.")
				return nil
			}
			for _, conv := range resp.Conversations {
				fmt.Fprintf(out, "%4d  %-40s %s\n", conv.ID, conv.Name, conv.LastUpdated)
			}
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a conversation with its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid conversation id %q", args[0])
			}
			var resp struct {
				Conversation store.Conversation `json:"conversation"`
				Messages     []store.Message    `json:"messages"`
			}
			url := fmt.Sprintf("%s/%s/conversations/%d", daemonURL(cfg.Server.Addr), agentID, id)
			if err := getJSON(cmd.Context(), url, &resp); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (conversation %d)\n", resp.Conversation.Name, resp.Conversation.ID)
			for _, msg := range resp.Messages {
				switch msg.Type {
				case "function_call":
					fmt.Fprintf(out, "[call %s] %s\n", msg.FunctionName, msg.Content)
				case "function_call_output":
					fmt.Fprintf(out, "[result] %s\n", msg.Content)
				default:
					fmt.Fprintf(out, "%s: %s\n", msg.Role, msg.Content)
				}
			}
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid conversation id %q", args[0])
			}
			url := fmt.Sprintf("%s/%s/conversations/%d", daemonURL(cfg.Server.Addr), agentID, id)
			if err := deleteJSON(cmd.Context(), url); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted conversation %d.\n", id)
			return nil
		},
	}

	cmd.AddCommand(list, show, del)
	return cmd
}

func deleteJSON(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
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
	return nil
}
