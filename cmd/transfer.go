package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/moyu-x/file-transfer/app"
	"github.com/moyu-x/file-transfer/config"
	"github.com/moyu-x/file-transfer/internal"
)

var copyCmd = &cobra.Command{
	Use:   "copy <sources...> <destination>",
	Short: "复制文件或目录",
	Long: `复制一个或多个文件或目录到目标路径。
目标是已存在的目录或有多个源时，每个源复制到目标目录下。
目录会先创建完整的目录结构（包括空目录），再按遍历顺序复制文件。`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTransfer(cmd, args, internal.OpCopy)
	},
}

var moveCmd = &cobra.Command{
	Use:   "move <sources...> <destination>",
	Short: "移动文件或目录",
	Long: `移动一个或多个文件或目录到目标路径。
同一卷上直接重命名；跨卷时先复制，校验通过（或未开启校验）后再删除源文件。`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTransfer(cmd, args, internal.OpMove)
	},
}

func runTransfer(cmd *cobra.Command, args []string, typ internal.OperationType) error {
	cfg := config.Get()

	opts, err := operationOptions(cmd, cfg)
	if err != nil {
		return err
	}
	priorityName, _ := cmd.Flags().GetString("priority")
	priority, err := internal.ParsePriority(priorityName)
	if err != nil {
		return err
	}
	useTUI, _ := cmd.Flags().GetBool("tui")

	op, err := app.RunTransfer(cmd.Context(), cfg, &app.TransferOptions{
		Type:        typ,
		Sources:     args[:len(args)-1],
		Destination: args[len(args)-1],
		Priority:    priority,
		Options:     opts,
		UseTUI:      useTUI,
		Decider:     app.NewPrompter(os.Stdin, os.Stderr).Decide,
	})
	if err != nil {
		return err
	}

	printSummary(op)
	if op.Status != internal.StatusCompleted {
		return fmt.Errorf("操作未成功完成: %s", op.Status)
	}
	return nil
}

func operationOptions(cmd *cobra.Command, cfg *config.Config) (internal.OperationOptions, error) {
	opts := cfg.OperationOptions()

	if cmd.Flags().Changed("verify") {
		opts.VerifyAfter, _ = cmd.Flags().GetBool("verify")
	}
	if cmd.Flags().Changed("preserve") {
		opts.PreserveMetadata, _ = cmd.Flags().GetBool("preserve")
	}
	if cmd.Flags().Changed("conflict") {
		name, _ := cmd.Flags().GetString("conflict")
		action, err := internal.ParseConflictAction(name)
		if err != nil {
			return opts, err
		}
		opts.ConflictAction = action
	}
	if cmd.Flags().Changed("algorithm") {
		name, _ := cmd.Flags().GetString("algorithm")
		algo, err := internal.ParseHashAlgorithm(name)
		if err != nil {
			return opts, err
		}
		opts.Algorithm = algo
	}
	opts.ApplyToAll, _ = cmd.Flags().GetBool("apply-to-all")
	return opts, nil
}

func printSummary(op *internal.FileOperation) {
	fmt.Printf("操作 %s: %s\n", op.ID, op.Status)
	fmt.Printf("  总文件数: %d  已处理: %d  失败: %d  跳过: %d  未尝试: %d\n",
		op.TotalFiles, op.ProcessedFiles, op.FailedFiles, op.SkippedFiles, op.NotAttempted)
	if !op.StartedAt.IsZero() && !op.CompletedAt.IsZero() {
		fmt.Printf("  耗时: %s\n", op.CompletedAt.Sub(op.StartedAt))
	}
	for _, e := range op.Errors {
		fmt.Printf("  [%s] %s: %s\n", e.Kind, e.Source, e.Message)
	}
}

func addTransferFlags(cmd *cobra.Command) {
	cmd.Flags().String("priority", "normal", "优先级: low, normal, high, critical")
	cmd.Flags().Bool("verify", false, "传输后校验")
	cmd.Flags().Bool("preserve", true, "保留修改时间和权限")
	cmd.Flags().String("conflict", "", "冲突处理: skip, overwrite, overwrite_if_newer, rename, ask")
	cmd.Flags().Bool("apply-to-all", false, "本次操作中所有冲突使用同一处理方式")
	cmd.Flags().String("algorithm", "", "校验算法: crc32, xxhash, md5, sha256, sha512")
	cmd.Flags().Bool("tui", false, "使用终端界面显示进度")
}

func init() {
	addTransferFlags(copyCmd)
	addTransferFlags(moveCmd)

	rootCmd.AddCommand(copyCmd)
	rootCmd.AddCommand(moveCmd)
}
