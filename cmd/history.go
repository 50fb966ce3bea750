package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/moyu-x/file-transfer/app"
	"github.com/moyu-x/file-transfer/config"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "列出已结束操作的历史记录",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := app.OpenHistory(config.Get())
		if err != nil {
			return err
		}
		defer store.Close()

		records, err := store.Load()
		if err != nil {
			return err
		}

		limit, _ := cmd.Flags().GetInt("limit")
		if limit > 0 && len(records) > limit {
			records = records[len(records)-limit:]
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(records)
		}

		for _, r := range records {
			fmt.Printf("%s  %-6s %-9s %-8s 文件 %d/%d  失败 %d  %s\n",
				r.CompletedAt.Format("2006-01-02 15:04:05"), r.Type, r.Status, r.Priority,
				r.ProcessedFiles, r.TotalFiles, r.FailedFiles, r.ID)
			if r.ErrorSummary != "" {
				fmt.Printf("    %s\n", r.ErrorSummary)
			}
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "显示最近的 N 条，0 表示全部")
	historyCmd.Flags().Bool("json", false, "以 JSON 输出")

	rootCmd.AddCommand(historyCmd)
}
