package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"MTCPlayer/cache"
	"MTCPlayer/core/auth"
	"MTCPlayer/core/library"
	"MTCPlayer/core/party"
	"MTCPlayer/core/player"
	"MTCPlayer/core/transport"
	"MTCPlayer/db"
	"MTCPlayer/model"
	"MTCPlayer/repository"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	partyName    string
	partyStore   bool
	partySmartEQ bool
)

var partyCmd = &cobra.Command{
	Use:   "party",
	Short: "派对同步工具",
}

var partyWatchCmd = &cobra.Command{
	Use:   "watch <invite-url | room>",
	Short: "以访客身份加入房间并打印同步事件",
	Long: `按 PARTY_TRANSPORT 选择传输（ws 走 RELAY_URL，redis 走 Redis 发布订阅），
以访客身份加入房间，打印成员变化与主持人的播放事件。`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inv, err := parseInvite(args[0])
		if err != nil {
			return err
		}

		rt, closeRT, err := partyRealtime(cmd.Context(), inv.Token)
		if err != nil {
			return err
		}
		defer closeRT()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s := party.NewSession(rt)
		offState := s.OnStateChange(func(st model.PartyState) {
			if st.RoomID == "" {
				color.Yellow("已离开房间")
				return
			}
			color.Cyan("房间 %s · %d 人在线 · 主持人 %s", st.RoomID, st.UserCount, st.HostName)
		})
		defer offState()
		offEvent := s.OnEvent(func(ev model.PartyEvent) {
			at := time.UnixMilli(ev.Timestamp).Format("15:04:05.000")
			fmt.Printf("%s %s %s %s\n", color.HiBlackString(at), color.GreenString(string(ev.Type)),
				color.HiBlackString(ev.SenderID), string(ev.Payload))
		})
		defer offEvent()

		if err := s.CreateSession(ctx, inv.RoomID, false, partyName); err != nil {
			return err
		}
		defer s.LeaveSession()
		if err := s.Broadcast(ctx, model.PartySyncRequest, nil); err != nil {
			return err
		}

		<-ctx.Done()
		return nil
	},
}

var partyHostCmd = &cobra.Command{
	Use:   "host <dir>",
	Short: "无界面主持：播放目录中的媒体并广播给访客",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		h, err := headlessFromDir(ctx, args[0])
		if err != nil {
			return err
		}
		defer db.CloseGormDB()
		defer h.Close()
		go h.Run(ctx)

		room := party.GenerateRoomID(partyName)
		token, err := inviteToken(room, auth.DefaultInviteTTL)
		if err != nil {
			return err
		}
		rt, closeRT, err := partyRealtime(ctx, token)
		if err != nil {
			return err
		}
		defer closeRT()

		s := party.NewSession(rt)
		if err := s.CreateSession(ctx, room, true, partyName); err != nil {
			return err
		}
		defer s.LeaveSession()
		offBridge := party.NewHostBridge(h.Transport, s).Start(ctx)
		defer offBridge()
		offLog := h.Transport.OnEvent(func(ev transport.Event) {
			if ev.Type == transport.EventTrackChange && ev.Track != nil {
				color.Green("▶ %s · %s", ev.Track.Title, ev.Track.Artist)
			}
		})
		defer offLog()

		color.Cyan("房间 %s", room)
		fmt.Printf("link:  %s\n", party.InviteURL(room, token))
		fmt.Printf("web:   %s\n", party.WebInviteURL(cfg.InviteBaseURL, room, token))

		h.Transport.SetRepeat(model.RepeatAll)
		if err := h.Transport.ShuffleAll(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return nil
	},
}

var partyJoinCmd = &cobra.Command{
	Use:   "join <invite-url | room> <dir>",
	Short: "无界面访客：用本地同一批文件跟随主持人播放",
	Long:  `扫描本地目录后加入房间。本地媒体 id 由文件内容计算，主持人与访客持有相同文件即可对上曲目。`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		inv, err := parseInvite(args[0])
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		h, err := headlessFromDir(ctx, args[1])
		if err != nil {
			return err
		}
		defer db.CloseGormDB()
		defer h.Close()
		go h.Run(ctx)

		rt, closeRT, err := partyRealtime(ctx, inv.Token)
		if err != nil {
			return err
		}
		defer closeRT()

		s := party.NewSession(rt)
		offState := s.OnStateChange(func(st model.PartyState) {
			if st.RoomID != "" {
				color.Cyan("房间 %s · %d 人在线 · 主持人 %s", st.RoomID, st.UserCount, st.HostName)
			}
		})
		defer offState()
		if err := s.CreateSession(ctx, inv.RoomID, false, partyName); err != nil {
			return err
		}
		defer s.LeaveSession()
		offFollow, err := party.NewFollower(h.Transport).Bind(ctx, s)
		if err != nil {
			return err
		}
		defer offFollow()

		<-ctx.Done()
		return nil
	},
}

func parseInvite(arg string) (party.Invite, error) {
	if strings.Contains(arg, "/party/") {
		return party.ParseInviteURL(arg)
	}
	return party.Invite{RoomID: arg}, nil
}

// partyRealtime picks the transport named by PARTY_TRANSPORT.
func partyRealtime(ctx context.Context, token string) (party.Realtime, func(), error) {
	switch cfg.PartyTransport {
	case "redis":
		rdb, err := cache.ConnectRedis(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return rdb.PartyRelay(), func() { rdb.Close() }, nil
	case "ws", "":
		return party.NewWSRealtime(cfg.RelayURL, token), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("party transport %q cannot reach other processes", cfg.PartyTransport)
	}
}

// headlessFromDir scans dir into a fresh library and builds a player over
// it. With --store, play counts go to the database.
func headlessFromDir(ctx context.Context, dir string) (*player.Headless, error) {
	lib := library.New()
	opts := []player.Option{player.WithNotifier(transport.NotifierFunc(printNotice))}
	if partySmartEQ {
		opts = append(opts, player.WithSmartEQ())
	}
	if partyStore {
		if err := db.ConnectGormDB(cfg); err != nil {
			return nil, err
		}
		repo := repository.NewGormMediaRepository(db.GormDB)
		if err := repo.Migrate(ctx); err != nil {
			return nil, err
		}
		opts = append(opts, player.WithTransport(transport.WithPlayCounter(repo)))
		if _, err := library.NewScanner(lib, dir, library.WithSaver(repo)).Scan(ctx); err != nil {
			return nil, err
		}
	} else if _, err := library.NewScanner(lib, dir).Scan(ctx); err != nil {
		return nil, err
	}
	if lib.Len() == 0 {
		return nil, fmt.Errorf("no media found in %s", dir)
	}
	return player.New(cfg.SampleRate, lib, opts...)
}

func printNotice(level transport.Level, msg string) {
	switch level {
	case transport.LevelError:
		color.Red("✗ %s", msg)
	case transport.LevelSuccess:
		color.Green("✓ %s", msg)
	default:
		fmt.Println(msg)
	}
}

func init() {
	rootCmd.AddCommand(partyCmd)
	partyCmd.AddCommand(partyWatchCmd, partyHostCmd, partyJoinCmd)
	partyCmd.PersistentFlags().StringVar(&partyName, "name", "guest", "显示名称")
	partyHostCmd.Flags().BoolVar(&partyStore, "store", false, "播放次数写入 MySQL")
	partyJoinCmd.Flags().BoolVar(&partyStore, "store", false, "播放次数写入 MySQL")
	partyHostCmd.Flags().BoolVar(&partySmartEQ, "smart-eq", false, "按曲目标签自动切换均衡器预设")
	partyJoinCmd.Flags().BoolVar(&partySmartEQ, "smart-eq", false, "按曲目标签自动切换均衡器预设")
}
