package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/aletheia/internal/chat"
	"github.com/user/aletheia/internal/render"
	"github.com/user/aletheia/internal/types"
)

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().Bool("search", false, "enable web search")
	sendCmd.Flags().String("conversation", "", "continue an existing conversation by id")
	sendCmd.Flags().Bool("no-color", false, "disable colored output")
}

var sendCmd = &cobra.Command{
	Use:   "send <message>",
	Short: "Send one message and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)
		ctx := cmd.Context()

		_, prefs := loadPrefs(cfg)
		if search, _ := cmd.Flags().GetBool("search"); search {
			prefs.SearchEnabled = true
		}
		ctrl, _ := newController(cfg, prefs)
		ctrl.Start(ctx)
		defer ctrl.Close()

		if id, _ := cmd.Flags().GetString("conversation"); id != "" {
			if err := ctrl.OpenConversation(ctx, types.ConversationID(id)); err != nil {
				return err
			}
		}

		ex := ctrl.Send(ctx, strings.Join(args, " "))
		if ex.Status == chat.ExchangeRejected {
			return fmt.Errorf("message is empty")
		}

		noColor, _ := cmd.Flags().GetBool("no-color")
		r := render.NewRenderer(os.Stdout, nil, !noColor)
		r.Message(ex.Reply)
		if id := ctrl.Store().ActiveConversationID(); !id.IsNew() {
			r.Info("conversation %s", id)
		}
		if ex.Error != nil {
			return fmt.Errorf("send message: %w", ex.Error)
		}
		return nil
	},
}
