// boardctl 是协作画板的命令行客户端，用于观察画板和发送操作。
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"collaborative-board/internal/boardclient"
	"collaborative-board/internal/domain"
	"collaborative-board/internal/dto"
)

const joinTimeout = 10 * time.Second

type options struct {
	url     string
	token   string
	boardID string
}

func main() {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:           "boardctl",
		Short:         "Command line client for the collaborative board server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.url, "url", "ws://localhost:8080/ws", "WebSocket endpoint")
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("BOARD_TOKEN"), "bearer token (default $BOARD_TOKEN)")
	rootCmd.PersistentFlags().StringVarP(&opts.boardID, "board", "b", "", "board ID")
	_ = rootCmd.MarkPersistentFlagRequired("board")

	rootCmd.AddCommand(watchCmd(opts), drawCmd(opts), chatCmd(opts))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// connect 建立连接并加入画板，返回 board-joined 负载
func connect(ctx context.Context, opts *options) (*boardclient.Client, *dto.BoardJoined, error) {
	client, err := boardclient.Dial(ctx, opts.url, opts.token)
	if err != nil {
		return nil, nil, err
	}
	if err := client.Join(opts.boardID); err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, joinTimeout)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			_ = client.Close()
			return nil, nil, fmt.Errorf("join %s: %w", opts.boardID, ctx.Err())
		case env, ok := <-client.Events():
			if !ok {
				return nil, nil, boardclient.ErrClosed
			}
			switch env.Event {
			case dto.EventBoardJoined:
				var joined dto.BoardJoined
				if err := json.Unmarshal(env.Data, &joined); err != nil {
					_ = client.Close()
					return nil, nil, err
				}
				return client, &joined, nil
			case dto.EventError:
				var e dto.ErrorPayload
				_ = json.Unmarshal(env.Data, &e)
				_ = client.Close()
				return nil, nil, fmt.Errorf("join %s rejected: %s (%s)", opts.boardID, e.Message, e.Code)
			}
		}
	}
}

func watchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Join a board and print every event as a JSON line",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client, joined, err := connect(ctx, opts)
			if err != nil {
				return err
			}
			defer client.Close()
			fmt.Fprintf(cmd.ErrOrStderr(), "joined %s (%s) as session %s, %d users online, %d actions replayed\n",
				joined.BoardID, joined.BoardName, joined.SessionID, len(joined.Users), len(joined.DrawingHistory))

			out := json.NewEncoder(cmd.OutOrStdout())
			for {
				select {
				case <-ctx.Done():
					return nil
				case env, ok := <-client.Events():
					if !ok {
						if err := client.Err(); err != nil && !errors.Is(err, boardclient.ErrClosed) {
							return err
						}
						return nil
					}
					if err := out.Encode(env); err != nil {
						return err
					}
				}
			}
		},
	}
}

func drawCmd(opts *options) *cobra.Command {
	var (
		kind   string
		points string
		color  string
		width  float64
	)
	cmd := &cobra.Command{
		Use:   "draw",
		Short: "Send a stroke (draw or erase) to a board",
		RunE: func(cmd *cobra.Command, _ []string) error {
			coords, err := parsePoints(points)
			if err != nil {
				return err
			}
			payload := domain.NewStrokePayload(domain.ActionKind(kind), coords, color, width)
			if err := payload.Validate(); err != nil {
				return err
			}
			client, _, err := connect(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer client.Close()
			return client.Draw(opts.boardID, payload)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(domain.ActionDraw), "draw or erase")
	cmd.Flags().StringVar(&points, "points", "", "comma separated coordinates x0,y0,x1,y1,...")
	cmd.Flags().StringVar(&color, "color", "#000000", "stroke color")
	cmd.Flags().Float64Var(&width, "width", 2, "stroke width")
	_ = cmd.MarkFlagRequired("points")
	return cmd
}

func chatCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "chat MESSAGE",
		Short: "Send a chat message to a board",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := connect(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer client.Close()
			if err := client.Chat(opts.boardID, strings.Join(args, " ")); err != nil {
				return err
			}
			// 聊天消息会回显给发送者，收到回显即表示已广播
			ctx, cancel := context.WithTimeout(cmd.Context(), joinTimeout)
			defer cancel()
			_, err = client.Expect(ctx, dto.EventChatMessage)
			return err
		},
	}
}

func parsePoints(s string) ([]float64, error) {
	fields := strings.Split(s, ",")
	coords := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid coordinate %q: %w", f, err)
		}
		coords = append(coords, v)
	}
	return coords, nil
}
