package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"MTCPlayer/core/library"
	"MTCPlayer/db"
	"MTCPlayer/model"
	"MTCPlayer/repository"
	"MTCPlayer/storage"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	scanWatch  bool
	scanUpload bool
	scanStore  bool
)

var scanCmd = &cobra.Command{
	Use:   "scan [dir]",
	Short: "扫描本地目录导入媒体库",
	Long: `递归扫描目录中的音频与视频文件，按 "艺术家 - 标题" 解析文件名。
--upload 将文件上传至 MinIO，--store 写入数据库，--watch 持续监听新文件。`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := cfg.LibraryDir
		if len(args) == 1 {
			dir = args[0]
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		lib := library.New()
		var opts []library.ScanOption

		if scanUpload {
			client, err := storage.NewMinioClient(cfg)
			if err != nil {
				return err
			}
			if err := storage.EnsureBucket(ctx, client, cfg.MinioBucket, cfg.MinioRegion); err != nil {
				return err
			}
			opts = append(opts, library.WithUploader(storage.NewResolver(client, cfg.MinioBucket)))
		}
		if scanStore {
			if err := db.ConnectGormDB(cfg); err != nil {
				return err
			}
			defer db.CloseGormDB()
			repo := repository.NewGormMediaRepository(db.GormDB)
			if err := repo.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate media table: %w", err)
			}
			if err := lib.Load(ctx, repo); err != nil {
				return err
			}
			opts = append(opts, library.WithSaver(repo))
		}

		scanner := library.NewScanner(lib, dir, opts...)
		items, err := scanner.Scan(ctx)
		if err != nil {
			return err
		}

		title := color.New(color.FgHiWhite, color.Bold)
		dim := color.New(color.FgHiBlack)
		for _, it := range items {
			kind := color.GreenString("♪")
			if it.Type == model.MediaTypeVideo {
				kind = color.MagentaString("▶")
			}
			fmt.Printf("%s %s %s %s\n", kind, title.Sprint(it.Title), dim.Sprint("·"), it.Artist)
			dim.Printf("    %s  %s\n", it.ID, it.MediaURL)
		}
		color.Cyan("导入 %d 个文件，媒体库共 %d 项", len(items), lib.Len())

		if !scanWatch {
			return nil
		}
		color.Yellow("监听 %s 中的新文件，Ctrl+C 退出", dir)
		return scanner.Watch(ctx)
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().BoolVarP(&scanWatch, "watch", "w", false, "扫描后持续监听目录")
	scanCmd.Flags().BoolVar(&scanUpload, "upload", false, "上传到 MinIO 存储桶")
	scanCmd.Flags().BoolVar(&scanStore, "store", false, "写入 MySQL 媒体表")
}
