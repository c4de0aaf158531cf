package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"MTCPlayer/cache"
	"MTCPlayer/logger"
	"MTCPlayer/server"
	"MTCPlayer/storage"

	"github.com/spf13/cobra"
)

var relayAddr string

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "启动派对同步中继",
	Long: `启动 websocket 派对中继：按房间转发播放事件并维护在线成员。
配置了 Redis 时在线成员同时写入 Redis，配置了 MinIO 时提供 /media 预签名跳转。`,
	PreRun: func(cmd *cobra.Command, args []string) {
		if relayAddr != "" {
			cfg.RelayAddr = relayAddr
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var presence server.PresenceRecorder
		if cfg.RedisHost != "" {
			if rdb, err := cache.ConnectRedis(ctx, cfg); err != nil {
				logger.Warn("redis unavailable, presence kept in memory only", logger.ErrorField(err))
			} else {
				defer rdb.Close()
				presence = rdb.PresenceStore()
			}
		}

		var media server.MediaLinker
		if cfg.MinioEndpoint != "" {
			client, err := storage.NewMinioClient(cfg)
			if err != nil {
				logger.Warn("minio unavailable, /media disabled", logger.ErrorField(err))
			} else {
				media = storage.NewResolver(client, cfg.MinioBucket)
			}
		}

		return server.Start(ctx, cfg, presence, media)
	},
}

func init() {
	rootCmd.AddCommand(relayCmd)
	relayCmd.Flags().StringVar(&relayAddr, "addr", "", "监听地址，覆盖 RELAY_ADDR")
}
