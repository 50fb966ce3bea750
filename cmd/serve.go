package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/moyu-x/file-transfer/app"
	"github.com/moyu-x/file-transfer/config"
	"github.com/moyu-x/file-transfer/internal/api"
	"github.com/moyu-x/file-transfer/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动 HTTP 接口",
	Long: `启动 HTTP 接口，通过 REST 提交和控制操作，通过 /api/ws 接收状态与进度事件。
HTTP 模式下没有交互式冲突决策，ask 按跳过处理。`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = cfg.Server.Addr
		}

		engine, err := app.NewEngine(cfg, nil)
		if err != nil {
			return err
		}
		defer engine.Close()

		srv := &http.Server{
			Addr:              addr,
			Handler:           api.NewServer(engine, api.WithDefaults(cfg.OperationOptions())),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Get().Info().Msgf("HTTP 服务已启动: http://%s", addr)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
		case <-cmd.Context().Done():
			logger.Get().Info().Msg("正在关闭 HTTP 服务")
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "监听地址 (默认取配置 server.addr)")

	rootCmd.AddCommand(serveCmd)
}
