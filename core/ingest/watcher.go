package ingest

import (
	"context"
	"hash/fnv"
	"path/filepath"
	"strings"

	"WaveFM/core/library"
	"WaveFM/logger"
	"WaveFM/model"

	"github.com/fsnotify/fsnotify"
)

var audioExtensions = map[string]bool{
	".mp3":  true,
	".flac": true,
	".ogg":  true,
	".m4a":  true,
}

// Watcher 监听本地导入目录，落盘的音频文件直接进曲库。
// 文件名约定 "Artist - Title.ext"，不符合约定的整个文件名当作标题。
type Watcher struct {
	dir string
	lib *library.Library
}

// NewWatcher 创建导入监听器
func NewWatcher(dir string, lib *library.Library) *Watcher {
	return &Watcher{dir: dir, lib: lib}
}

// Start 启动监听循环，ctx 取消时退出
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		return err
	}

	logger.Info("import watcher started", logger.String("dir", w.dir))

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Create == fsnotify.Create {
					w.handleFile(ctx, event.Name)
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("import watcher error", logger.ErrorField(err))
			}
		}
	}()

	return nil
}

func (w *Watcher) handleFile(ctx context.Context, path string) {
	ext := strings.ToLower(filepath.Ext(path))
	if !audioExtensions[ext] {
		return
	}

	artist, title := parseFilename(path)
	track := &model.Track{
		ID:       trackIDForPath(path),
		Title:    title,
		Artist:   artist,
		MediaRef: "file://" + path,
	}

	if err := w.lib.AddTrack(ctx, track); err != nil {
		logger.Warn("failed to import track",
			logger.ErrorField(err),
			logger.String("path", path))
		return
	}

	logger.Info("track imported",
		logger.String("path", path),
		logger.Int64("track", track.ID))
}

// parseFilename 从 "Artist - Title.ext" 提取元数据
func parseFilename(path string) (artist, title string) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if parts := strings.SplitN(base, " - ", 2); len(parts) == 2 {
		return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	}
	return "", base
}

// trackIDForPath 为本地文件生成稳定的曲目ID
func trackIDForPath(path string) int64 {
	h := fnv.New64a()
	h.Write([]byte(filepath.Base(path)))
	return int64(h.Sum64() & 0x7fffffffffffffff)
}
