package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/admi-n/poc-excavator/src/internal"
)

const (
	// DefaultReportName 批量分析写入 PoC 目录的文件名
	DefaultReportName = "ROOT_CAUSE_ANALYSIS.md"
	// EnhancedReportName 单文件深度分析的文件名
	EnhancedReportName = "ENHANCED_ROOT_CAUSE_ANALYSIS.md"
)

// Storage 报告存储接口
type Storage interface {
	Save(rec *internal.EvidenceRecord, content string) (string, error)
}

// FileStorage 文件存储实现
//
// OutputDir 为空时报告写在 PoC 所在目录，否则写到 OutputDir/<日期>/<项目>/。
type FileStorage struct {
	OutputDir string
	FileName  string
}

// NewFileStorage 创建文件存储
func NewFileStorage(outputDir, fileName string) *FileStorage {
	if fileName == "" {
		fileName = DefaultReportName
	}
	return &FileStorage{OutputDir: outputDir, FileName: fileName}
}

// Dir 报告所在目录
func (s *FileStorage) Dir(rec *internal.EvidenceRecord) string {
	if s.OutputDir == "" {
		return rec.SourceDir()
	}
	return filepath.Join(s.OutputDir, rec.ObservedDate, rec.ProjectName)
}

// Path 报告完整路径
func (s *FileStorage) Path(rec *internal.EvidenceRecord) string {
	return filepath.Join(s.Dir(rec), s.FileName)
}

// Exists 报告是否已经存在
func (s *FileStorage) Exists(rec *internal.EvidenceRecord) bool {
	_, err := os.Stat(s.Path(rec))
	return err == nil
}

// Save 保存报告到文件
func (s *FileStorage) Save(rec *internal.EvidenceRecord, content string) (string, error) {
	dir := s.Dir(rec)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(dir, s.FileName)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}
	return path, nil
}
