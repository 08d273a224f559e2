package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	pipeerr "github.com/admi-n/poc-excavator/src/internal/errors"
)

// MySQLConfig MySQL 连接配置
type MySQLConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     string `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	Database string `mapstructure:"database" yaml:"database"`
}

// DSN username:password@tcp(host:port)/dbname?parseTime=true
func (c MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

const mysqlSchema = `CREATE TABLE IF NOT EXISTS evidence_records (
	source_path VARCHAR(512) NOT NULL PRIMARY KEY,
	project_name VARCHAR(255) NOT NULL,
	observed_date VARCHAR(32) NOT NULL,
	network VARCHAR(32) NOT NULL,
	tx_hashes JSON NOT NULL,
	attacker_addresses JSON NOT NULL,
	vulnerable_contracts JSON NOT NULL,
	attack_contracts JSON NOT NULL,
	estimated_loss VARCHAR(128) NOT NULL,
	run_id VARCHAR(64) NOT NULL,
	status VARCHAR(16) NOT NULL,
	has_trace TINYINT(1) NOT NULL,
	report_path VARCHAR(512) NOT NULL,
	recorded_at DATETIME NOT NULL
) DEFAULT CHARSET=utf8mb4`

const mysqlUpsert = `INSERT INTO evidence_records
	(source_path, project_name, observed_date, network, tx_hashes, attacker_addresses,
	 vulnerable_contracts, attack_contracts, estimated_loss, run_id, status, has_trace, report_path, recorded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
	project_name = VALUES(project_name), observed_date = VALUES(observed_date), network = VALUES(network),
	tx_hashes = VALUES(tx_hashes), attacker_addresses = VALUES(attacker_addresses),
	vulnerable_contracts = VALUES(vulnerable_contracts), attack_contracts = VALUES(attack_contracts),
	estimated_loss = VALUES(estimated_loss), run_id = VALUES(run_id), status = VALUES(status),
	has_trace = VALUES(has_trace), report_path = VALUES(report_path), recorded_at = VALUES(recorded_at)`

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// MySQLStore 把证据记录写入 evidence_records 表
type MySQLStore struct {
	db   sqlExecer
	conn *sql.DB
}

// NewMySQLStore 初始化 MySQL 连接池并 ping 验证，然后建表
func NewMySQLStore(ctx context.Context, cfg MySQLConfig) (*MySQLStore, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, pipeerr.Wrap(err, pipeerr.KindConfig, pipeerr.StageStore, "mysql", "打开 MySQL 失败")
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, pipeerr.Unavailable(pipeerr.StageStore, "mysql", err)
	}

	s := &MySQLStore{db: db, conn: db}
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema 建表
func (s *MySQLStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, mysqlSchema); err != nil {
		return pipeerr.Wrap(err, pipeerr.KindStorage, pipeerr.StageStore, "mysql", "创建 evidence_records 表失败")
	}
	return nil
}

// Write 按 source_path 插入或更新
func (s *MySQLStore) Write(ctx context.Context, e Entry) error {
	r, err := toRow(e)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, mysqlUpsert, r.args()...); err != nil {
		return pipeerr.Wrap(err, pipeerr.KindStorage, pipeerr.StageStore, e.Record.ProjectName, "写入 MySQL 失败")
	}
	return nil
}

func (s *MySQLStore) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
