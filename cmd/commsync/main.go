package main

import (
	"Campus/internal/api/config"
	"Campus/internal/model"
	"Campus/internal/pkg/syncclient"
	"bufio"
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// commsync 终端版轮询客户端：打印会话列表与当前线程，标准输入发送消息
//
//	:open <id>  切换会话
//	:close      关闭线程
//	其他输入    发送到当前会话
func main() {
	pflag.String("url", "http://localhost:8080", "API base url")
	pflag.String("token", "", "bearer token")
	pflag.Uint64("branch", 0, "branch id")
	pflag.Parse()
	_ = viper.BindPFlags(pflag.CommandLine)

	if err := config.LoadConfig(); err != nil {
		if !errors.Is(err, config.ErrConfigNotFound) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		log.Warn("config file not found, using defaults", "err", err)
	}

	branchID := viper.GetUint64("branch")
	if branchID == 0 {
		fmt.Fprintln(os.Stderr, "--branch is required")
		os.Exit(2)
	}

	client := syncclient.New(syncclient.OptionsFromConfig(
		viper.GetString("url"), viper.GetString("token"), branchID, config.Cfg.Comm))
	client.OnChange(render)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go readInput(ctx, client)

	if err := client.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error("sync client stopped", "err", err)
		os.Exit(1)
	}
}

func readInput(ctx context.Context, client *syncclient.Client) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == ":close":
			client.Deselect()
		case strings.HasPrefix(line, ":open "):
			id, err := strconv.ParseUint(strings.TrimSpace(strings.TrimPrefix(line, ":open ")), 10, 64)
			if err != nil {
				fmt.Println("invalid conversation id")
				continue
			}
			if err = client.Select(ctx, id); err != nil {
				fmt.Println("open failed:", err)
			}
		default:
			res, err := client.Send(ctx, line)
			if err != nil {
				fmt.Println("send failed:", err)
				continue
			}
			if res != nil && res.Warning != "" {
				fmt.Println("warning:", res.Warning)
			}
		}
	}
}

func render(s syncclient.State) {
	var b strings.Builder
	b.WriteString("\033[H\033[2J")
	if s.ListErr != nil {
		fmt.Fprintf(&b, "list error: %v\n\n", s.ListErr)
	}
	for _, c := range s.Conversations {
		marker := " "
		if c.ID == s.SelectedID {
			marker = ">"
		}
		fmt.Fprintf(&b, "%s #%-5d %-24s %-8s unread=%-3d %s\n",
			marker, c.ID, c.ParticipantName, c.ParticipantType, c.UnreadCount, c.LastMessageContent)
	}
	if s.SelectedID != 0 {
		b.WriteString("\n")
		if s.ThreadErr != nil {
			fmt.Fprintf(&b, "thread error: %v\n", s.ThreadErr)
		}
		for _, m := range s.Messages {
			arrow := "<-"
			if m.Direction == model.DirectionOutgoing {
				arrow = "->"
			}
			fmt.Fprintf(&b, "%s %s %s\n", m.CreatedAt.Format("15:04"), arrow, m.Content)
		}
	}
	fmt.Print(b.String())
}
