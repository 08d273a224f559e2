package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admi-n/poc-excavator/src/internal"
	pipeerr "github.com/admi-n/poc-excavator/src/internal/errors"
	"github.com/admi-n/poc-excavator/src/internal/logging"
)

func entry() Entry {
	return Entry{
		RunID: "run-1",
		Record: internal.EvidenceRecord{
			SourcePath:        "source/2024-03/Foo_exp/Foo_exp.sol",
			ProjectName:       "Foo_exp",
			ObservedDate:      "2024-03",
			Network:           internal.NetworkBSC,
			TxHashes:          []string{"0xbb", "0xaa"},
			AttackerAddresses: []string{"0x01"},
			EstimatedLoss:     &internal.LossAmount{Amount: "5,000", Unit: "$"},
		},
		Status:     "written",
		HasTrace:   true,
		ReportPath: "source/2024-03/Foo_exp/ROOT_CAUSE_ANALYSIS.md",
		RecordedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

type fakeExec struct {
	queries []string
	args    [][]any
	err     error
}

func (f *fakeExec) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	f.queries = append(f.queries, query)
	f.args = append(f.args, args)
	return driver.RowsAffected(1), f.err
}

func (f *fakeExec) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	f.queries = append(f.queries, query)
	f.args = append(f.args, args)
	return pgconn.CommandTag{}, f.err
}

func TestMySQLConfig_DSN(t *testing.T) {
	cfg := MySQLConfig{Host: "db", Port: "3306", User: "u", Password: "p", Database: "excavator"}
	assert.Equal(t, "u:p@tcp(db:3306)/excavator?parseTime=true&charset=utf8mb4", cfg.DSN())
}

func TestMySQLStore_Write(t *testing.T) {
	exec := &fakeExec{}
	s := &MySQLStore{db: exec}

	require.NoError(t, s.EnsureSchema(context.Background()))
	require.NoError(t, s.Write(context.Background(), entry()))

	require.Len(t, exec.queries, 2)
	assert.Contains(t, exec.queries[0], "CREATE TABLE IF NOT EXISTS evidence_records")
	assert.Contains(t, exec.queries[1], "ON DUPLICATE KEY UPDATE")

	args := exec.args[1]
	require.Len(t, args, 14)
	assert.Equal(t, "source/2024-03/Foo_exp/Foo_exp.sol", args[0])
	assert.Equal(t, "bsc", args[3])
	assert.Equal(t, `["0xaa","0xbb"]`, args[4])
	assert.Equal(t, `[]`, args[6])
	assert.Equal(t, "$5,000", args[8])
	assert.Equal(t, true, args[11])
	assert.NoError(t, s.Close())
}

func TestMySQLStore_WriteError(t *testing.T) {
	s := &MySQLStore{db: &fakeExec{err: errors.New("deadlock")}}
	err := s.Write(context.Background(), entry())
	require.Error(t, err)
	assert.True(t, pipeerr.IsKind(err, pipeerr.KindStorage))
}

func TestPostgresStore_Write(t *testing.T) {
	exec := &fakeExec{}
	s := &PostgresStore{db: exec}

	require.NoError(t, s.Write(context.Background(), entry()))
	require.Len(t, exec.queries, 1)
	assert.Contains(t, exec.queries[0], "ON CONFLICT (source_path) DO UPDATE")
	assert.Equal(t, "run-1", exec.args[0][9])
	assert.NoError(t, s.Close())
}

func TestKafkaSink_Write(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var got Entry
		if err := json.Unmarshal(val, &got); err != nil {
			return err
		}
		if got.Record.ProjectName != "Foo_exp" || got.RunID != "run-1" {
			return errors.New("unexpected payload")
		}
		return nil
	})
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	sink := NewKafkaSinkWithProducer("evidence", producer)
	require.NoError(t, sink.Write(context.Background(), entry()))

	err := sink.Write(context.Background(), entry())
	require.Error(t, err)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)

	require.NoError(t, sink.Close())
}

func TestKafkaSink_CancelledContext(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	sink := NewKafkaSinkWithProducer("evidence", producer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sink.Write(ctx, entry()), context.Canceled)
	require.NoError(t, sink.Close())
}

func TestNewKafkaSink_RequiresTopic(t *testing.T) {
	_, err := NewKafkaSink(KafkaConfig{Brokers: []string{"localhost:9092"}})
	assert.True(t, pipeerr.IsKind(err, pipeerr.KindConfig))
}

type recordingSink struct {
	entries []Entry
	err     error
	closed  bool
}

func (r *recordingSink) Write(_ context.Context, e Entry) error {
	r.entries = append(r.entries, e)
	return r.err
}

func (r *recordingSink) Close() error {
	r.closed = true
	return nil
}

func TestMultiSink(t *testing.T) {
	ok := &recordingSink{}
	bad := &recordingSink{err: errors.New("down")}
	m := NewMultiSink(logging.Discard(), ok, bad)
	assert.Equal(t, 2, m.Len())

	e := entry()
	e.RecordedAt = time.Time{}
	err := m.Write(context.Background(), e)
	require.Error(t, err)
	assert.True(t, pipeerr.IsKind(err, pipeerr.KindStorage))
	require.Len(t, ok.entries, 1)
	assert.False(t, ok.entries[0].RecordedAt.IsZero())
	assert.Len(t, bad.entries, 1)

	require.NoError(t, m.Close())
	assert.True(t, ok.closed)
	assert.True(t, bad.closed)
}

func TestOpen_NothingEnabled(t *testing.T) {
	m, err := Open(context.Background(), Config{}, logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, 0, m.Len())
	require.NoError(t, m.Write(context.Background(), entry()))
}
