package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hitoshi/nutrisport/internal/dashboard"
	"github.com/hitoshi/nutrisport/internal/gateway"
	"github.com/hitoshi/nutrisport/internal/model"
)

// errSessionExpired は操作中にセッションの期限が切れた場合のエラー。
var errSessionExpired = errors.New("session expired: run `nutrisport login`")

// newResourceCommands はリソース種別ごとに list/get/create/update/delete を持つコマンドを生成する。
func newResourceCommands() []*cobra.Command {
	specs := gateway.Specs()
	cmds := make([]*cobra.Command, 0, len(specs))
	for _, spec := range specs {
		cmds = append(cmds, newResourceCommand(spec))
	}
	return cmds
}

func newResourceCommand(spec gateway.Spec) *cobra.Command {
	cmd := &cobra.Command{
		Use:   spec.Name,
		Short: "Manage " + spec.Plural,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List " + spec.Plural,
			Args:  cobra.NoArgs,
			RunE: withPanel(spec, func(ctx context.Context, cmd *cobra.Command, p dashboard.Panel, _ []string) error {
				items, err := p.List(ctx)
				if err != nil {
					return resourceError(dashboard.Notice{}, err)
				}
				return printJSON(cmd.OutOrStdout(), items)
			}),
		},
		&cobra.Command{
			Use:   "get <id>",
			Short: "Show a " + spec.Singular,
			Args:  cobra.ExactArgs(1),
			RunE: withPanel(spec, func(ctx context.Context, cmd *cobra.Command, p dashboard.Panel, args []string) error {
				item, err := p.Get(ctx, args[0])
				if err != nil {
					return resourceError(dashboard.Notice{}, err)
				}
				return printJSON(cmd.OutOrStdout(), item)
			}),
		},
		newWriteCommand(spec, "create", "Create a "+spec.Singular, cobra.NoArgs,
			func(ctx context.Context, p dashboard.Panel, args []string, payload []byte) (any, dashboard.Notice, error) {
				return p.Create(ctx, payload)
			}),
		newWriteCommand(spec, "update <id>", "Update a "+spec.Singular, cobra.ExactArgs(1),
			func(ctx context.Context, p dashboard.Panel, args []string, payload []byte) (any, dashboard.Notice, error) {
				return p.Update(ctx, args[0], payload)
			}),
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a " + spec.Singular,
			Args:  cobra.ExactArgs(1),
			RunE: withPanel(spec, func(ctx context.Context, cmd *cobra.Command, p dashboard.Panel, args []string) error {
				notice, err := p.Delete(ctx, args[0])
				if err != nil {
					return resourceError(notice, err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), notice.Text)
				return nil
			}),
		},
	)

	return cmd
}

type writeFunc func(ctx context.Context, p dashboard.Panel, args []string, payload []byte) (any, dashboard.Notice, error)

// newWriteCommand は --data でペイロードを受け取る作成・更新コマンドを生成する。
func newWriteCommand(spec gateway.Spec, use, short string, args cobra.PositionalArgs, write writeFunc) *cobra.Command {
	var data string

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
	}
	cmd.RunE = withPanel(spec, func(ctx context.Context, cmd *cobra.Command, p dashboard.Panel, args []string) error {
		payload, err := readPayload(cmd.InOrStdin(), data)
		if err != nil {
			return err
		}
		result, notice, err := write(ctx, p, args, payload)
		if err != nil {
			return resourceError(notice, err)
		}
		fmt.Fprintln(cmd.ErrOrStderr(), notice.Text)
		return printJSON(cmd.OutOrStdout(), result)
	})
	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON payload, @file to read a file, or - for stdin")

	return cmd
}

type panelFunc func(ctx context.Context, cmd *cobra.Command, p dashboard.Panel, args []string) error

// withPanel はセッションを確認してからspecのPanelでfnを実行する。
// 未ログインの場合はAPIサーバーへリクエストせずに失敗する。
func withPanel(spec gateway.Spec, fn panelFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return withComponents(cmd, func(ctx context.Context, c *components) error {
			if !c.sessions.IsAuthenticated() {
				return errNotLoggedIn
			}
			p, err := c.board.Panel(spec.Name)
			if err != nil {
				return err
			}
			return fn(ctx, cmd, p, args)
		})
	}
}

// readPayload は --data の値からペイロードを読み込む。
// "-" は標準入力、"@path" はファイルの内容、それ以外はJSONそのものとして扱う。
func readPayload(stdin io.Reader, data string) ([]byte, error) {
	switch {
	case data == "":
		return nil, errors.New("payload is required (--data)")
	case data == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload from stdin: %w", err)
		}
		return b, nil
	case strings.HasPrefix(data, "@"):
		b, err := os.ReadFile(strings.TrimPrefix(data, "@"))
		if err != nil {
			return nil, fmt.Errorf("failed to read payload file: %w", err)
		}
		return b, nil
	default:
		return []byte(data), nil
	}
}

// resourceError はCLIに表示するエラーを選ぶ。
// 書き込み操作の失敗は通知の文言をそのまま使う。
func resourceError(notice dashboard.Notice, err error) error {
	var authErr *model.AuthError
	if errors.As(err, &authErr) {
		if authErr.Reason == model.AuthReasonExpired {
			return errSessionExpired
		}
		return errNotLoggedIn
	}
	if notice.Level == dashboard.NoticeError && notice.Text != "" {
		return errors.New(notice.Text)
	}
	return err
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
