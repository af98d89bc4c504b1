package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	chatModel "github.com/zhouzirui/ecokart/backend/internal/model/chat"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show conversation store statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, closeStore, err := openStore(cmd.Context(), cfg.Store)
		if err != nil {
			return fmt.Errorf("open context store: %w", err)
		}
		defer closeStore()

		stats, err := st.Statistics(cmd.Context())
		if err != nil {
			return err
		}
		printStats(cmd.OutOrStdout(), stats)
		return nil
	},
}

func printStats(w io.Writer, stats *chatModel.Statistics) {
	fmt.Fprintf(w, "Conversations:        %d\n", stats.TotalConversations)
	fmt.Fprintf(w, "Messages:             %d\n", stats.TotalMessages)
	fmt.Fprintf(w, "Active (last 7 days): %d\n", stats.RecentConversations)
	fmt.Fprintf(w, "Avg messages/conv:    %.2f\n", stats.AvgMessagesPerConversation)
}
