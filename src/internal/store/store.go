package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/admi-n/poc-excavator/src/internal"
	pipeerr "github.com/admi-n/poc-excavator/src/internal/errors"
)

// Entry 一条持久化的证据记录及其处理结果
type Entry struct {
	RunID      string                  `json:"run_id"`
	Record     internal.EvidenceRecord `json:"record"`
	Status     string                  `json:"status"`
	HasTrace   bool                    `json:"has_trace"`
	ReportPath string                  `json:"report_path,omitempty"`
	RecordedAt time.Time               `json:"recorded_at"`
}

// Sink 证据记录的下游
type Sink interface {
	Write(ctx context.Context, e Entry) error
	Close() error
}

// MultiSink 依次写入所有下游，错误合并返回
type MultiSink struct {
	sinks  []Sink
	logger logrus.FieldLogger
}

// NewMultiSink 创建组合下游
func NewMultiSink(logger logrus.FieldLogger, sinks ...Sink) *MultiSink {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &MultiSink{sinks: sinks, logger: logger}
}

// Len 下游数量
func (m *MultiSink) Len() int {
	return len(m.sinks)
}

func (m *MultiSink) Write(ctx context.Context, e Entry) error {
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}
	var errs []error
	for _, s := range m.sinks {
		if err := s.Write(ctx, e); err != nil {
			m.logger.WithError(err).Warnf("⚠️  写入证据记录失败: %s", e.Record.ProjectName)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return pipeerr.Wrap(errors.Join(errs...), pipeerr.KindStorage, pipeerr.StageStore, e.Record.ProjectName, "写入证据记录失败")
	}
	return nil
}

func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Config 各下游配置，未启用的下游不创建
type Config struct {
	MySQL    MySQLConfig    `mapstructure:"mysql" yaml:"mysql"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
	Kafka    KafkaConfig    `mapstructure:"kafka" yaml:"kafka"`
}

// Open 按配置创建下游，任何一个创建失败都会关闭已创建的
func Open(ctx context.Context, cfg Config, logger logrus.FieldLogger) (*MultiSink, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	var sinks []Sink
	fail := func(err error) (*MultiSink, error) {
		for _, s := range sinks {
			_ = s.Close()
		}
		return nil, err
	}

	if cfg.MySQL.Enabled {
		s, err := NewMySQLStore(ctx, cfg.MySQL)
		if err != nil {
			return fail(err)
		}
		logger.Infof("🗄️  MySQL 已连接: %s:%s/%s", cfg.MySQL.Host, cfg.MySQL.Port, cfg.MySQL.Database)
		sinks = append(sinks, s)
	}
	if cfg.Postgres.Enabled {
		s, err := NewPostgresStore(ctx, cfg.Postgres)
		if err != nil {
			return fail(err)
		}
		logger.Info("🗄️  PostgreSQL 已连接")
		sinks = append(sinks, s)
	}
	if cfg.Kafka.Enabled {
		s, err := NewKafkaSink(cfg.Kafka)
		if err != nil {
			return fail(err)
		}
		logger.Infof("📤 Kafka 已连接: topic=%s", cfg.Kafka.Topic)
		sinks = append(sinks, s)
	}
	return NewMultiSink(logger, sinks...), nil
}

// row 关系库一行的取值，列表字段存 JSON
type row struct {
	sourcePath string
	project    string
	date       string
	network    string
	txHashes   []byte
	attackers  []byte
	vulnerable []byte
	attack     []byte
	loss       string
	runID      string
	status     string
	hasTrace   bool
	reportPath string
	recordedAt time.Time
}

func toRow(e Entry) (row, error) {
	r := row{
		sourcePath: e.Record.SourcePath,
		project:    e.Record.ProjectName,
		date:       e.Record.ObservedDate,
		network:    string(e.Record.Network),
		loss:       e.Record.EstimatedLoss.String(),
		runID:      e.RunID,
		status:     e.Status,
		hasTrace:   e.HasTrace,
		reportPath: e.ReportPath,
		recordedAt: e.RecordedAt,
	}
	if r.recordedAt.IsZero() {
		r.recordedAt = time.Now().UTC()
	}

	var err error
	for _, f := range []struct {
		dst *[]byte
		src []string
	}{
		{&r.txHashes, e.Record.TxHashes},
		{&r.attackers, e.Record.AttackerAddresses},
		{&r.vulnerable, e.Record.VulnerableContracts},
		{&r.attack, e.Record.AttackContracts},
	} {
		if *f.dst, err = json.Marshal(internal.SortedSet(f.src)); err != nil {
			return row{}, fmt.Errorf("failed to marshal identifiers: %w", err)
		}
	}
	return r, nil
}

func (r row) args() []any {
	return []any{
		r.sourcePath, r.project, r.date, r.network,
		string(r.txHashes), string(r.attackers), string(r.vulnerable), string(r.attack),
		r.loss, r.runID, r.status, r.hasTrace, r.reportPath, r.recordedAt,
	}
}
