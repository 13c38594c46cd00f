package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// FileStore はディレクトリ配下にキーごとのJSONファイルを置くStore実装。
// CLIとコンソールサーバーが同じディレクトリを共有する。
type FileStore struct {
	dir    string
	logger *slog.Logger
}

// NewFileStore はFileStoreを生成する。ディレクトリが無ければ0700で作成する。
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("storage: directory is empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("storage: failed to create directory: %w", err)
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

// Dir はストアのディレクトリを返す。
func (f *FileStore) Dir() string {
	return f.dir
}

func (f *FileStore) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("storage: invalid key %q", key)
	}
	return filepath.Join(f.dir, key+".json"), nil
}

// Get はキーに対応するファイルの内容を返す。
func (f *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: failed to read %s: %w", key, err)
	}
	return data, nil
}

// Set は一時ファイルへ書き込んでからリネームすることで原子的に保存する。
// トークンを含むためパーミッションは0600とする。
func (f *FileStore) Set(_ context.Context, key string, value []byte) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.dir, "."+key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("storage: failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("storage: failed to write %s: %w", key, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("storage: failed to chmod %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("storage: failed to close %s: %w", key, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("storage: failed to rename %s: %w", key, err)
	}
	return nil
}

// Remove はキーのファイルを削除する。存在しない場合は何もしない。
func (f *FileStore) Remove(_ context.Context, key string) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: failed to remove %s: %w", key, err)
	}
	return nil
}

// Watch はキーのファイルの作成・更新・削除を監視する。
// リネームによる置き換えを捕捉するため、ファイルではなくディレクトリを監視する。
// 通知は取りこぼしを許容し、受信側が最新状態を読み直す前提とする。
func (f *FileStore) Watch(ctx context.Context, key string) (<-chan struct{}, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("storage: failed to create watcher: %w", err)
	}
	if err := w.Add(f.dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("storage: failed to watch %s: %w", f.dir, err)
	}

	ch := make(chan struct{}, 1)
	target := filepath.Clean(p)

	go func() {
		defer close(ch)
		defer w.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) &&
					!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
					continue
				}
				select {
				case ch <- struct{}{}:
				default:
				}
			case werr, ok := <-w.Errors:
				if !ok {
					return
				}
				if f.logger != nil {
					f.logger.Warn("session file watcher error",
						slog.String("error", werr.Error()),
					)
				}
			}
		}
	}()

	return ch, nil
}
