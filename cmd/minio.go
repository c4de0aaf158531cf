package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"MTCPlayer/storage"

	"github.com/spf13/cobra"
)

var (
	minioPrefix string
	minioStats  bool
	minioEnsure bool
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "MinIO存储桶管理",
	Long:  `查看媒体存储桶中的文件与统计信息，或在首次部署时创建存储桶。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		client, err := storage.NewMinioClient(cfg)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if minioEnsure {
			if err := storage.EnsureBucket(ctx, client, cfg.MinioBucket, cfg.MinioRegion); err != nil {
				return err
			}
		}

		objects, stats, err := storage.ListObjects(ctx, client, cfg.MinioBucket, minioPrefix)
		if err != nil {
			return err
		}
		if minioStats {
			fmt.Printf("对象总数: %d\n总大小: %s\n", stats.TotalObjects, storage.FormatSize(stats.TotalSize))
			if !stats.LastModified.IsZero() {
				fmt.Printf("最后修改: %s\n", stats.LastModified.Format("2006-01-02 15:04:05"))
			}
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tKIND\tSIZE\tMODIFIED")
		for _, o := range objects {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", o.Key, storage.InferKind(o.Key),
				storage.FormatSize(o.Size), o.LastModified.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)

	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "按前缀过滤文件")
	minioCmd.Flags().BoolVarP(&minioStats, "stats", "s", false, "显示存储桶统计信息")
	minioCmd.Flags().BoolVar(&minioEnsure, "ensure", false, "存储桶不存在时创建")

	minioCmd.Example = `  # 列出所有文件
  mtcplayer minio

  # 按前缀过滤文件
  mtcplayer minio -p "audio/"

  # 显示存储桶统计信息
  mtcplayer minio -s`
}
