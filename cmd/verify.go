package cmd

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/moyu-x/file-transfer/app"
	"github.com/moyu-x/file-transfer/config"
	"github.com/moyu-x/file-transfer/internal"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <source> <destination>",
	Short: "比较源与目标的内容摘要",
	Long: `先比较文件大小，大小一致时再计算摘要比较。
目录按相对路径逐个文件比较。--sampled 只读取均匀分布的若干区间，速度快但可能漏掉区间外的损坏。`,
	Args: cobra.ExactArgs(2),
	RunE: runVerify,
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	name, _ := cmd.Flags().GetString("algorithm")
	if name == "" {
		name = cfg.Verify.Algorithm
	}
	algo, err := internal.ParseHashAlgorithm(name)
	if err != nil {
		return err
	}
	sampled, _ := cmd.Flags().GetBool("sampled")

	results, err := app.RunVerify(cmd.Context(), afero.NewOsFs(), cfg, &app.VerifyOptions{
		Source:      args[0],
		Destination: args[1],
		Algorithm:   algo,
		Sampled:     sampled,
	})
	if err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		switch {
		case r.Match:
			fmt.Printf("OK       %s\n", r.Destination)
		case r.Error != "":
			failed++
			fmt.Printf("FAILED   %s (%s)\n", r.Destination, r.Error)
		default:
			failed++
			fmt.Printf("MISMATCH %s\n", r.Destination)
		}
	}
	fmt.Printf("共 %d 个文件，%d 个不一致\n", len(results), failed)

	if failed > 0 {
		return fmt.Errorf("%w: %d files", internal.ErrVerificationFailed, failed)
	}
	return nil
}

func init() {
	verifyCmd.Flags().String("algorithm", "", "校验算法: crc32, xxhash, md5, sha256, sha512")
	verifyCmd.Flags().Bool("sampled", false, "抽样校验（较弱）")

	rootCmd.AddCommand(verifyCmd)
}
