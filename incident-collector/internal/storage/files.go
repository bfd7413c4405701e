package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Renarion/hackathon-indrive-25/incident-collector/internal/models"
)

// FileStore 本地证据文件存储
// 布局: <root>/<incident_id>/photo-<i>.jpg, audio.wav
type FileStore struct {
	root string
}

// NewFileStore 创建文件存储
func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

// Root 根目录
func (s *FileStore) Root() string {
	return s.root
}

// Save 写入一次上传的全部文件，返回事故目录
// 写入失败时删除已创建的目录
func (s *FileStore) Save(id string, upload *models.Upload) (dir string, err error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("invalid incident id %q", id)
	}

	dir = filepath.Join(s.root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create incident dir: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(dir)
		}
	}()

	for i, photo := range upload.Photos {
		name := fmt.Sprintf("photo-%d.jpg", i)
		if err := os.WriteFile(filepath.Join(dir, name), photo.Data, 0o644); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "audio.wav"), upload.Audio.Data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write audio.wav: %w", err)
	}

	return dir, nil
}
