package cmd

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/moyu-x/file-transfer/app"
	"github.com/moyu-x/file-transfer/config"
	"github.com/moyu-x/file-transfer/internal"
	"github.com/moyu-x/file-transfer/pkg/verifier"
)

var checksumCmd = &cobra.Command{
	Use:   "checksum",
	Short: "生成或检查校验文件",
}

var checksumWriteCmd = &cobra.Command{
	Use:   "write <files...>",
	Short: "计算文件摘要并写入校验文件",
	Long: `计算每个文件（目录会被展开）的摘要，写入与 sha256sum 等工具兼容的校验文件。
文件名相对校验文件所在目录记录。`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		output, _ := cmd.Flags().GetString("output")
		format, _ := cmd.Flags().GetString("format")

		name, _ := cmd.Flags().GetString("algorithm")
		if name == "" {
			name = cfg.Verify.Algorithm
		}
		algo, err := internal.ParseHashAlgorithm(name)
		if err != nil {
			return err
		}

		fs := afero.NewOsFs()
		files, err := app.ExpandFiles(fs, args)
		if err != nil {
			return err
		}

		v := verifier.New(fs, cfg.VerifierOptions()...)
		if err := v.WriteChecksumFile(cmd.Context(), files, output, algo, verifier.ChecksumFormat(format)); err != nil {
			return err
		}
		fmt.Printf("已写入 %s (%d 个文件)\n", output, len(files))
		return nil
	},
}

var checksumCheckCmd = &cobra.Command{
	Use:   "check <sumfile>",
	Short: "重新计算校验文件中每个条目的摘要",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()

		var algo internal.HashAlgorithm
		if name, _ := cmd.Flags().GetString("algorithm"); name != "" {
			parsed, err := internal.ParseHashAlgorithm(name)
			if err != nil {
				return err
			}
			algo = parsed
		}

		v := verifier.New(afero.NewOsFs(), cfg.VerifierOptions()...)
		entries, err := v.CheckChecksumFile(cmd.Context(), args[0], algo)
		if err != nil {
			return err
		}

		invalid := 0
		for _, e := range entries {
			if e.Valid {
				fmt.Printf("%s: OK\n", e.Path)
				continue
			}
			invalid++
			if e.Error != "" {
				fmt.Printf("%s: FAILED (%s)\n", e.Path, e.Error)
			} else {
				fmt.Printf("%s: FAILED\n", e.Path)
			}
		}
		if invalid > 0 {
			return fmt.Errorf("%w: %d of %d entries", internal.ErrVerificationFailed, invalid, len(entries))
		}
		return nil
	},
}

func init() {
	checksumWriteCmd.Flags().StringP("output", "o", "CHECKSUMS", "校验文件路径")
	checksumWriteCmd.Flags().String("format", string(verifier.FormatGNU), "格式: gnu, bsd")
	checksumWriteCmd.Flags().String("algorithm", "", "校验算法: crc32, xxhash, md5, sha256, sha512")
	checksumCheckCmd.Flags().String("algorithm", "", "校验算法，为空时按摘要长度推断")

	checksumCmd.AddCommand(checksumWriteCmd)
	checksumCmd.AddCommand(checksumCheckCmd)
	rootCmd.AddCommand(checksumCmd)
}
