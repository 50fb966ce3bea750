package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/moyu-x/file-transfer/config"
	"github.com/moyu-x/file-transfer/pkg/logger"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "file-transfer",
	Short: "一个支持队列、暂停恢复和校验的本地文件传输工具",
	Long: `File Transfer 是一个命令行工具，用于在本地文件系统上高效地复制、移动和校验文件。

主要功能:
- 按优先级排队执行复制、移动、校验操作
- 根据文件大小和是否同卷自适应选择缓冲区
- 暂停、恢复、取消正在执行的操作
- 目标已存在时跳过、覆盖、较新时覆盖、重命名或询问
- 传输后使用 xxhash/md5/sha256 等算法校验
- 历史记录保存在 JSON 文件或 SQLite 数据库中`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		if err := logger.Init(level, cfg.Logging.File); err != nil {
			return err
		}
		logger.Get().Debug().Msg("加载配置完成")
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径 (默认 $HOME/.file-transfer/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "显示详细日志")
}
