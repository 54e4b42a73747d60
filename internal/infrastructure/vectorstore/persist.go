package vectorstore

import (
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"chem-rag-api/internal/domain/entity"
)

const (
	formatVersion = 1

	vectorSuffix   = ".vec"
	metadataSuffix = "_metadata.json"
	tempPattern    = ".tmp-*"
)

// vectorFile 向量文件结构
type vectorFile struct {
	Version int
	FileID  string
	Dim     int
	Metric  string
	Count   int
	Data    []float32
}

// metadataFile 元数据文件结构
type metadataFile struct {
	Version int                     `json:"version"`
	FileID  string                  `json:"file_id"`
	Count   int                     `json:"count"`
	Items   []entity.VectorMetadata `json:"items"`
}

func (s *Store) vectorPath(fileID string) string {
	return filepath.Join(s.dir, fileID+vectorSuffix)
}

func (s *Store) metadataPath(fileID string) string {
	return filepath.Join(s.dir, fileID+metadataSuffix)
}

// writeAtomic 先写临时文件再 rename
func writeAtomic(path string, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+tempPattern)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if err := write(tmp); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// persist 写入两个文件：先向量后元数据
func (s *Store) persist(fileID string, fi *fileIndex) error {
	vf := vectorFile{
		Version: formatVersion,
		FileID:  fileID,
		Dim:     fi.index.Dim(),
		Metric:  string(fi.index.Metric()),
		Count:   fi.index.Len(),
		Data:    fi.index.data,
	}
	if err := writeAtomic(s.vectorPath(fileID), func(w io.Writer) error {
		return gob.NewEncoder(w).Encode(&vf)
	}); err != nil {
		return fmt.Errorf("write vectors: %w", err)
	}

	mf := metadataFile{
		Version: formatVersion,
		FileID:  fileID,
		Count:   len(fi.meta),
		Items:   fi.meta,
	}
	if err := writeAtomic(s.metadataPath(fileID), func(w io.Writer) error {
		return json.NewEncoder(w).Encode(&mf)
	}); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

// load 从磁盘读取并校验；文件不存在返回 os.ErrNotExist
func (s *Store) load(fileID string) (*fileIndex, error) {
	vecF, err := os.Open(s.vectorPath(fileID))
	if err != nil {
		return nil, err
	}
	defer vecF.Close()
	stamp, err := vecF.Stat()
	if err != nil {
		return nil, err
	}

	var vf vectorFile
	if err := gob.NewDecoder(vecF).Decode(&vf); err != nil {
		return nil, fmt.Errorf("%w: decode vectors: %v", ErrIndexCorrupt, err)
	}
	if vf.Version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", ErrIndexCorrupt, vf.Version)
	}
	if vf.Dim <= 0 || len(vf.Data) != vf.Count*vf.Dim {
		return nil, fmt.Errorf("%w: %d floats for %d vectors of dim %d", ErrIndexCorrupt, len(vf.Data), vf.Count, vf.Dim)
	}
	metric, err := ParseMetric(vf.Metric)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
	}

	metaF, err := os.Open(s.metadataPath(fileID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: metadata file missing", ErrIndexCorrupt)
		}
		return nil, err
	}
	defer metaF.Close()

	var mf metadataFile
	if err := json.NewDecoder(metaF).Decode(&mf); err != nil {
		return nil, fmt.Errorf("%w: decode metadata: %v", ErrIndexCorrupt, err)
	}
	if len(mf.Items) != vf.Count || mf.Count != vf.Count {
		return nil, fmt.Errorf("%w: %d vectors but %d metadata records", ErrIndexCorrupt, vf.Count, len(mf.Items))
	}

	return &fileIndex{
		index: &FlatIndex{dim: vf.Dim, metric: metric, data: vf.Data},
		meta:  mf.Items,
		stamp: stamp,
	}, nil
}

// removeArtifacts 删除两个文件，返回是否删除了任何文件
func (s *Store) removeArtifacts(fileID string) (bool, error) {
	removed := false
	var errs []error
	for _, p := range []string{s.vectorPath(fileID), s.metadataPath(fileID)} {
		err := os.Remove(p)
		switch {
		case err == nil:
			removed = true
		case errors.Is(err, os.ErrNotExist):
		default:
			errs = append(errs, err)
		}
	}
	return removed, errors.Join(errs...)
}

// fileIDFromArtifact 从向量文件名解析 file_id
func fileIDFromArtifact(name string) (string, bool) {
	if !strings.HasSuffix(name, vectorSuffix) || strings.Contains(name, ".tmp-") {
		return "", false
	}
	id := strings.TrimSuffix(name, vectorSuffix)
	return id, id != ""
}
