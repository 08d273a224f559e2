package extract

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/admi-n/poc-excavator/src/internal"
)

const (
	DefaultWorkers = 10
	MaxWorkers     = 32
)

// RecordBuilder 单个文件的构建接口
type RecordBuilder interface {
	BuildFile(path string) (internal.EvidenceRecord, error)
}

// Failure 单个文件的失败记录
type Failure struct {
	Path string
	Err  error
}

// BatchResult 批量提取结果，Records 按完成顺序排列
type BatchResult struct {
	Records  []internal.EvidenceRecord
	Failures []Failure
	Skipped  []string // 取消后未提交的文件
}

type collector struct {
	mu     sync.Mutex
	result BatchResult
}

func (c *collector) record(rec internal.EvidenceRecord) {
	c.mu.Lock()
	c.result.Records = append(c.result.Records, rec)
	c.mu.Unlock()
}

func (c *collector) fail(path string, err error) {
	c.mu.Lock()
	c.result.Failures = append(c.result.Failures, Failure{Path: path, Err: err})
	c.mu.Unlock()
}

func (c *collector) skip(path string) {
	c.mu.Lock()
	c.result.Skipped = append(c.result.Skipped, path)
	c.mu.Unlock()
}

// Coordinator 用固定大小的工作池并发构建记录
type Coordinator struct {
	builder RecordBuilder
	workers int
	logger  logrus.FieldLogger
}

// NewCoordinator 创建批量协调器，workers 超出 [1, MaxWorkers] 时回落到默认值或上限
func NewCoordinator(builder RecordBuilder, workers int, logger logrus.FieldLogger) *Coordinator {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if workers > MaxWorkers {
		workers = MaxWorkers
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Coordinator{builder: builder, workers: workers, logger: logger}
}

// Workers 实际使用的并发数
func (c *Coordinator) Workers() int {
	return c.workers
}

// Run 处理所有文件
//
// 单个文件失败只记录不重试，也不影响其它文件。ctx 取消后不再提交新文件，
// 已开始的扫描会执行完。
func (c *Coordinator) Run(ctx context.Context, paths []string) *BatchResult {
	col := &collector{}

	var g errgroup.Group
	g.SetLimit(c.workers)

	for i, path := range paths {
		if ctx.Err() != nil {
			for _, rest := range paths[i:] {
				col.skip(rest)
			}
			break
		}

		path := path
		g.Go(func() error {
			if ctx.Err() != nil {
				col.skip(path)
				return nil
			}
			rec, err := c.builder.BuildFile(path)
			if err != nil {
				c.logger.WithError(err).WithField("path", path).Warn("⚠️  提取失败，跳过该文件")
				col.fail(path, err)
				return nil
			}
			col.record(rec)
			return nil
		})
	}

	_ = g.Wait()

	c.logger.WithFields(logrus.Fields{
		"records":  len(col.result.Records),
		"failures": len(col.result.Failures),
		"skipped":  len(col.result.Skipped),
	}).Info("📝 批量提取完成")

	return &col.result
}
