package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/aletheia/internal/chat"
	"github.com/user/aletheia/internal/render"
	"github.com/user/aletheia/internal/types"
)

func init() {
	rootCmd.AddCommand(conversationsCmd)
	conversationsCmd.AddCommand(conversationsListCmd, conversationsShowCmd, conversationsDeleteCmd)
	conversationsShowCmd.Flags().Bool("no-color", false, "disable colored output")
}

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	Short:   "Manage saved conversations",
}

// signedInController returns a controller for one-shot commands that need a
// credential.
func signedInController(cmd *cobra.Command) (*chat.Controller, error) {
	cfg := loadConfig()
	setupLogging(cfg)
	_, prefs := loadPrefs(cfg)
	ctrl, creds := newController(cfg, prefs)
	if _, ok := creds.Credential(cmd.Context()); !ok {
		return nil, chat.ErrSignedOut
	}
	return ctrl, nil
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, err := signedInController(cmd)
		if err != nil {
			return err
		}
		if err := ctrl.RefreshConversations(cmd.Context()); err != nil {
			return err
		}

		list := ctrl.Store().Snapshot().Conversations
		if len(list) == 0 {
			fmt.Println("No conversations yet.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "#\tID\tTITLE\tUPDATED")
		for i, c := range list {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n",
				i+1,
				c.ID,
				render.ConversationTitle(c),
				c.UpdatedAt,
			)
		}
		return w.Flush()
	},
}

var conversationsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print the messages of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, err := signedInController(cmd)
		if err != nil {
			return err
		}
		if err := ctrl.OpenConversation(cmd.Context(), types.ConversationID(args[0])); err != nil {
			return err
		}

		noColor, _ := cmd.Flags().GetBool("no-color")
		r := render.NewRenderer(os.Stdout, nil, !noColor)
		msgs := ctrl.Store().Snapshot().Messages
		if len(msgs) == 0 {
			r.Info("No messages.")
			return nil
		}
		r.Messages(msgs)
		return nil
	},
}

var conversationsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, err := signedInController(cmd)
		if err != nil {
			return err
		}
		if err := ctrl.DeleteConversation(cmd.Context(), types.ConversationID(args[0])); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Conversation %s deleted.\n", args[0])
		return nil
	},
}
