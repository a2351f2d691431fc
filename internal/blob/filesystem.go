package blob

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/casdoor/oss"
)

// localFileSystem はローカルディスクをバックエンドとする
// oss.StorageInterfaceの実装。開発環境と単一ノード運用向け。
type localFileSystem struct {
	folder string
}

// newLocalFileSystem はベースディレクトリを作成してlocalFileSystemを生成する。
func newLocalFileSystem(folder string) (*localFileSystem, error) {
	abs, err := filepath.Abs(folder)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage folder: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage folder: %w", err)
	}
	return &localFileSystem{folder: abs}, nil
}

// GetFullPath は相対パスからフルパスを組み立てる。
func (fs *localFileSystem) GetFullPath(p string) string {
	fp := p
	if !strings.HasPrefix(p, fs.folder) {
		fp, _ = filepath.Abs(filepath.Join(fs.folder, p))
	}
	return fp
}

// Get は指定パスのファイルを開く。
func (fs *localFileSystem) Get(p string) (*os.File, error) {
	return os.Open(fs.GetFullPath(p))
}

// GetStream は指定パスのファイルをストリームとして開く。
func (fs *localFileSystem) GetStream(p string) (io.ReadCloser, error) {
	return os.Open(fs.GetFullPath(p))
}

// Put はリーダーの内容を指定パスへ保存する。
func (fs *localFileSystem) Put(p string, r io.Reader) (*oss.Object, error) {
	fp := fs.GetFullPath(p)
	if err := os.MkdirAll(filepath.Dir(fp), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	dst, err := os.Create(fp)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, r); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	return &oss.Object{Path: p, Name: filepath.Base(p), StorageInterface: fs}, nil
}

// Delete は指定パスのファイルを削除する。存在しない場合はエラーにしない。
func (fs *localFileSystem) Delete(p string) error {
	err := os.Remove(fs.GetFullPath(p))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// List は指定パス配下のファイル一覧を返す。
func (fs *localFileSystem) List(p string) ([]*oss.Object, error) {
	var objects []*oss.Object
	fp := fs.GetFullPath(p)

	err := filepath.Walk(fp, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == fp || info.IsDir() {
			return nil
		}
		mt := info.ModTime()
		objects = append(objects, &oss.Object{
			Path:             strings.TrimPrefix(path, fs.folder),
			Name:             info.Name(),
			LastModified:     &mt,
			StorageInterface: fs,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	return objects, nil
}

// GetEndpoint はエンドポイントを返す。ファイルシステムでは"/"。
func (fs *localFileSystem) GetEndpoint() string {
	return "/"
}

// GetURL は公開URLを返す。公開URLの組み立てはStorage側で行うため、
// ここではパスをそのまま返す。
func (fs *localFileSystem) GetURL(p string) (string, error) {
	return p, nil
}

// compile-time interface check
var _ oss.StorageInterface = (*localFileSystem)(nil)
