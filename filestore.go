// Copyright (c) 2023 wetrycode
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package nephila

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// FileStore 文件路由使用的读写能力
type FileStore interface {
	// ReadFile 读取文件内容,文件不存在时返回ErrFileNotFound
	ReadFile(name string) ([]byte, error)
	// WriteFile 写入文件,覆盖已有内容
	WriteFile(name string, data []byte) error
}

// AferoFileStore 基于afero的文件存储
type AferoFileStore struct {
	fs afero.Fs
}

// NewFileStore 以root为根目录的磁盘文件存储,文件名不能逃逸出根目录
func NewFileStore(root string) *AferoFileStore {
	return NewFileStoreWithFs(afero.NewBasePathFs(afero.NewOsFs(), root))
}

// NewFileStoreWithFs 使用自定义的afero.Fs,例如测试中的内存文件系统
func NewFileStoreWithFs(fs afero.Fs) *AferoFileStore {
	return &AferoFileStore{fs: fs}
}

// ReadFile 实现FileStore
func (s *AferoFileStore) ReadFile(name string) ([]byte, error) {
	info, err := s.fs.Stat(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrFileNotFound, name)
	}
	return afero.ReadFile(s.fs, name)
}

// WriteFile 实现FileStore
// 先写入同目录下的临时文件再重命名,并发写同一个文件时最后完成的写入生效,
// 读取方不会看到写了一半的文件
func (s *AferoFileStore) WriteFile(name string, data []byte) error {
	tmp, err := afero.TempFile(s.fs, filepath.Dir(name), "."+filepath.Base(name)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = s.fs.Chmod(tmpName, 0o644)
	}
	if err != nil {
		_ = s.fs.Remove(tmpName)
		return err
	}
	if err := s.fs.Rename(tmpName, name); err != nil {
		_ = s.fs.Remove(tmpName)
		return err
	}
	return nil
}
