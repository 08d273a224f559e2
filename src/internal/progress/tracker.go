package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const (
	// DefaultDBPath 默认数据库路径
	DefaultDBPath = "./data/progress.db"

	// 存储桶名称
	ProjectsBucket = "projects"
	RunsBucket     = "runs"
)

// Entry 一个 PoC 的完成记录
type Entry struct {
	SourcePath string    `json:"source_path"`
	RunID      string    `json:"run_id"`
	ReportPath string    `json:"report_path"`
	DoneAt     time.Time `json:"done_at"`
}

// RunInfo 一次运行的统计
type RunInfo struct {
	RunID      string    `json:"run_id"`
	Provider   string    `json:"provider"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Written    int       `json:"written"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
}

// Tracker 记录已经写出报告的 PoC，用于断点续跑
type Tracker struct {
	db     *bolt.DB
	logger logrus.FieldLogger
	dbPath string
}

// NewTracker 打开进度数据库
func NewTracker(dbPath string, logger logrus.FieldLogger) (*Tracker, error) {
	if dbPath == "" {
		dbPath = DefaultDBPath
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("打开进度数据库失败: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{ProjectsBucket, RunsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("创建存储桶 %s 失败: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化数据库失败: %w", err)
	}

	logger.Debugf("进度数据库: %s", dbPath)
	return &Tracker{db: db, logger: logger, dbPath: dbPath}, nil
}

// Path 数据库文件路径
func (t *Tracker) Path() string {
	return t.dbPath
}

// MarkDone 记录 PoC 已完成
func (t *Tracker) MarkDone(sourcePath, runID, reportPath string) error {
	data, err := json.Marshal(Entry{
		SourcePath: sourcePath,
		RunID:      runID,
		ReportPath: reportPath,
		DoneAt:     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("序列化进度失败: %w", err)
	}
	return t.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(ProjectsBucket)).Put([]byte(sourcePath), data)
	})
}

// IsDone PoC 是否已完成
func (t *Tracker) IsDone(sourcePath string) (bool, error) {
	var done bool
	err := t.db.View(func(tx *bolt.Tx) error {
		done = tx.Bucket([]byte(ProjectsBucket)).Get([]byte(sourcePath)) != nil
		return nil
	})
	return done, err
}

// List 所有完成记录，按路径排序
func (t *Tracker) List() ([]Entry, error) {
	var entries []Entry
	err := t.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(ProjectsBucket)).ForEach(func(k, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("解析进度 %s 失败: %w", k, err)
			}
			entries = append(entries, e)
			return nil
		})
	})
	return entries, err
}

// SaveRun 保存运行统计
func (t *Tracker) SaveRun(info RunInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("序列化运行信息失败: %w", err)
	}
	return t.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(RunsBucket)).Put([]byte(info.RunID), data)
	})
}

// Runs 所有运行统计，最新的在前
func (t *Tracker) Runs() ([]RunInfo, error) {
	var runs []RunInfo
	err := t.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(RunsBucket)).ForEach(func(k, v []byte) error {
			var r RunInfo
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("解析运行信息 %s 失败: %w", k, err)
			}
			runs = append(runs, r)
			return nil
		})
	})
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	return runs, err
}

// Reset 清空所有进度
func (t *Tracker) Reset() error {
	err := t.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{ProjectsBucket, RunsBucket} {
			if err := tx.DeleteBucket([]byte(name)); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
				return fmt.Errorf("删除存储桶 %s 失败: %w", name, err)
			}
			if _, err := tx.CreateBucket([]byte(name)); err != nil {
				return fmt.Errorf("创建存储桶 %s 失败: %w", name, err)
			}
		}
		return nil
	})
	if err == nil {
		t.logger.Info("🧹 进度已重置")
	}
	return err
}

// Close 关闭数据库
func (t *Tracker) Close() error {
	return t.db.Close()
}
