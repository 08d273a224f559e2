package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	pipeerr "github.com/admi-n/poc-excavator/src/internal/errors"
)

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	Enabled  bool     `mapstructure:"enabled" yaml:"enabled"`
	Brokers  []string `mapstructure:"brokers" yaml:"brokers"`
	Topic    string   `mapstructure:"topic" yaml:"topic"`
	ClientID string   `mapstructure:"client_id" yaml:"client_id"`
}

// NewProducerConfig 同步生产者配置
func NewProducerConfig(clientID string) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Version = sarama.V2_8_0_0
	if clientID != "" {
		cfg.ClientID = clientID
	}
	return cfg
}

// KafkaSink 以项目名为 key 把证据记录发布到 Kafka
type KafkaSink struct {
	topic    string
	producer sarama.SyncProducer
}

// NewKafkaSink 创建 Kafka 下游
func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, pipeerr.New(pipeerr.KindConfig, pipeerr.StageStore, "kafka", "brokers and topic are required")
	}
	p, err := sarama.NewSyncProducer(cfg.Brokers, NewProducerConfig(cfg.ClientID))
	if err != nil {
		return nil, pipeerr.Unavailable(pipeerr.StageStore, "kafka", err)
	}
	return NewKafkaSinkWithProducer(cfg.Topic, p), nil
}

// NewKafkaSinkWithProducer 使用已有生产者
func NewKafkaSinkWithProducer(topic string, p sarama.SyncProducer) *KafkaSink {
	return &KafkaSink{topic: topic, producer: p}
}

// Write SyncProducer 不接收 ctx，只在发送前检查取消
func (s *KafkaSink) Write(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(e.Record.ProjectName),
		Value: sarama.ByteEncoder(data),
	}
	if _, _, err := s.producer.SendMessage(msg); err != nil {
		return pipeerr.Wrap(err, pipeerr.KindStorage, pipeerr.StageStore, e.Record.ProjectName, "kafka emit failed")
	}
	return nil
}

func (s *KafkaSink) Close() error {
	if s.producer != nil {
		return s.producer.Close()
	}
	return nil
}
