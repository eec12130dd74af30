// Package kafka implements the Kafka record source.
package kafka

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/aws/aws-msk-iam-sasl-signer-go/signer"

	apperrors "github.com/jittakal/kafblockstore/internal/errors"
	"github.com/jittakal/kafblockstore/pkg/block"
	"github.com/jittakal/kafblockstore/pkg/source"
)

// Ensure implementation satisfies interface at compile time.
var _ source.Source = (*SaramaSource)(nil)

// SourceConfig contains Kafka source configuration.
type SourceConfig struct {
	BootstrapServers    []string
	Topics              []string
	GroupID             string
	SecurityProtocol    string
	SASLMechanism       string
	SASLUsername        string
	SASLPassword        string
	AWSRegion           string
	AutoOffsetReset     string
	SessionTimeoutMS    int
	HeartbeatIntervalMS int
	MaxPollIntervalMS   int
}

// Validate checks the Kafka source configuration.
func (c *SourceConfig) Validate() error {
	if len(c.BootstrapServers) == 0 {
		return fmt.Errorf("bootstrap servers are required")
	}
	if len(c.Topics) == 0 {
		return fmt.Errorf("at least one topic is required")
	}
	if c.GroupID == "" {
		return fmt.Errorf("consumer group id is required")
	}
	return nil
}

// MetricsCollector defines metrics operations for the Kafka source.
type MetricsCollector interface {
	IncSourceMessages(topic string, partition int32)
	IncSourceErrors(topic string)
}

// SaramaSource implements source.Source using a Sarama consumer group.
// Each consumed message becomes one record handed to the receiver;
// offsets are marked only after the receiver accepts the record, so a
// record blocked on downstream backpressure is redelivered on restart.
type SaramaSource struct {
	consumerGroup sarama.ConsumerGroup
	config        SourceConfig
	logger        *slog.Logger
	metrics       MetricsCollector
	ready         chan bool
	mu            sync.RWMutex
	closed        bool
}

// NewSaramaSource creates a new Kafka record source.
func NewSaramaSource(
	config SourceConfig,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*SaramaSource, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V2_8_0_0
	saramaConfig.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	saramaConfig.Consumer.Offsets.Initial = offsetInitial(config.AutoOffsetReset)
	saramaConfig.Consumer.Return.Errors = true

	if config.SessionTimeoutMS > 0 {
		saramaConfig.Consumer.Group.Session.Timeout = time.Duration(config.SessionTimeoutMS) * time.Millisecond
	}
	if config.HeartbeatIntervalMS > 0 {
		saramaConfig.Consumer.Group.Heartbeat.Interval = time.Duration(config.HeartbeatIntervalMS) * time.Millisecond
	}
	if config.MaxPollIntervalMS > 0 {
		saramaConfig.Consumer.MaxProcessingTime = time.Duration(config.MaxPollIntervalMS) * time.Millisecond
	} else {
		saramaConfig.Consumer.MaxProcessingTime = 5 * time.Minute
	}

	if err := configureSecurity(saramaConfig, config); err != nil {
		return nil, fmt.Errorf("failed to configure security: %w", err)
	}

	consumerGroup, err := sarama.NewConsumerGroup(
		config.BootstrapServers,
		config.GroupID,
		saramaConfig,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	logger.Info("kafka source created",
		"group_id", config.GroupID,
		"bootstrap_servers", config.BootstrapServers,
		"topics", config.Topics,
		"session_timeout_ms", config.SessionTimeoutMS,
	)

	return &SaramaSource{
		consumerGroup: consumerGroup,
		config:        config,
		logger:        logger,
		metrics:       metrics,
		ready:         make(chan bool),
	}, nil
}

// Run consumes messages and hands each record to the receiver. It
// blocks until the context is cancelled or the consumer group fails.
func (s *SaramaSource) Run(ctx context.Context, receiver source.Receiver) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return apperrors.ErrSourceClosed
	}
	s.mu.RUnlock()

	handler := &groupHandler{
		source:   s,
		receiver: receiver,
		ready:    s.ready,
	}

	for {
		if err := s.consumerGroup.Consume(ctx, s.config.Topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return apperrors.ErrSourceClosed
			}
			s.logger.Error("consumer group error", "error", err)
			return err
		}

		// Consume returns on rebalance; loop unless cancelled.
		if ctx.Err() != nil {
			s.logger.Info("kafka source context cancelled")
			return ctx.Err()
		}
	}
}

// Ready returns a channel closed once the first session is set up.
func (s *SaramaSource) Ready() <-chan bool {
	return s.ready
}

// Close closes the source and releases the consumer group.
func (s *SaramaSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.logger.Info("closing kafka source")

	if err := s.consumerGroup.Close(); err != nil {
		s.logger.Error("error closing consumer group", "error", err)
		return err
	}
	return nil
}

// groupHandler implements sarama.ConsumerGroupHandler.
type groupHandler struct {
	source    *SaramaSource
	receiver  source.Receiver
	ready     chan bool
	readyOnce sync.Once
}

// Setup is run at the beginning of a new session, before ConsumeClaim.
func (h *groupHandler) Setup(session sarama.ConsumerGroupSession) error {
	h.source.logger.Info("consumer group session setup",
		"member_id", session.MemberID(),
		"generation_id", session.GenerationID(),
		"claims", session.Claims(),
	)

	h.readyOnce.Do(func() {
		close(h.ready)
	})
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited.
func (h *groupHandler) Cleanup(session sarama.ConsumerGroupSession) error {
	h.source.logger.Info("consumer group session cleanup",
		"member_id", session.MemberID(),
	)
	return nil
}

// ConsumeClaim processes messages from a partition.
func (h *groupHandler) ConsumeClaim(
	session sarama.ConsumerGroupSession,
	claim sarama.ConsumerGroupClaim,
) error {
	topic := claim.Topic()
	partition := claim.Partition()

	h.source.logger.Info("started consuming partition",
		"topic", topic,
		"partition", partition,
		"initial_offset", claim.InitialOffset(),
	)

	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}

			record := block.Record{
				Key:       message.Key,
				Data:      message.Value,
				Timestamp: message.Timestamp,
			}

			if err := h.receiver.Store(session.Context(), record); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				h.source.logger.Error("receiver rejected record",
					"topic", message.Topic,
					"partition", message.Partition,
					"offset", message.Offset,
					"error", err,
				)
				if h.source.metrics != nil {
					h.source.metrics.IncSourceErrors(message.Topic)
				}
				return err
			}

			session.MarkMessage(message, "")
			if h.source.metrics != nil {
				h.source.metrics.IncSourceMessages(message.Topic, message.Partition)
			}

		case <-session.Context().Done():
			h.source.logger.Info("session context done, stopping partition consumption",
				"topic", topic,
				"partition", partition,
			)
			return nil
		}
	}
}

// MSKAccessTokenProvider implements sarama.AccessTokenProvider for AWS MSK IAM authentication.
type MSKAccessTokenProvider struct {
	region string
}

// Token generates an AWS MSK IAM authentication token.
func (m *MSKAccessTokenProvider) Token() (*sarama.AccessToken, error) {
	token, expiryMs, err := signer.GenerateAuthToken(context.Background(), m.region)
	if err != nil {
		return nil, fmt.Errorf("failed to generate MSK IAM token: %w", err)
	}

	return &sarama.AccessToken{
		Token: token,
		Extensions: map[string]string{
			"expiry": fmt.Sprintf("%d", expiryMs),
		},
	}, nil
}

// offsetInitial converts the AutoOffsetReset config to Sarama's offset constant.
func offsetInitial(autoOffsetReset string) int64 {
	switch autoOffsetReset {
	case "earliest":
		return sarama.OffsetOldest
	case "latest":
		return sarama.OffsetNewest
	default:
		return sarama.OffsetNewest
	}
}

func configureSecurity(config *sarama.Config, sourceConfig SourceConfig) error {
	switch sourceConfig.SecurityProtocol {
	case "", "PLAINTEXT":
		return nil

	case "SASL_PLAINTEXT", "SASL_SSL":
		config.Net.SASL.Enable = true

		switch sourceConfig.SASLMechanism {
		case "PLAIN":
			config.Net.SASL.Mechanism = sarama.SASLTypePlaintext
			config.Net.SASL.User = sourceConfig.SASLUsername
			config.Net.SASL.Password = sourceConfig.SASLPassword

		case "SCRAM-SHA-256":
			config.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
			config.Net.SASL.User = sourceConfig.SASLUsername
			config.Net.SASL.Password = sourceConfig.SASLPassword
			config.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &XDGSCRAMClient{HashGeneratorFcn: SHA256()}
			}

		case "SCRAM-SHA-512":
			config.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
			config.Net.SASL.User = sourceConfig.SASLUsername
			config.Net.SASL.Password = sourceConfig.SASLPassword
			config.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &XDGSCRAMClient{HashGeneratorFcn: SHA512()}
			}

		case "AWS_MSK_IAM":
			config.Net.SASL.Mechanism = sarama.SASLTypeOAuth
			config.Net.SASL.Enable = true

			// OAuth does not use username/password, but Sarama
			// requires them to pass validation.
			config.Net.SASL.User = "token"
			config.Net.SASL.Password = "token"

			region := sourceConfig.AWSRegion
			if region == "" {
				region = "us-east-1"
			}
			config.Net.SASL.TokenProvider = &MSKAccessTokenProvider{region: region}

		default:
			return fmt.Errorf("unsupported SASL mechanism: %s", sourceConfig.SASLMechanism)
		}

		if sourceConfig.SecurityProtocol == "SASL_SSL" {
			config.Net.TLS.Enable = true
			config.Net.TLS.Config = &tls.Config{
				MinVersion:         tls.VersionTLS12,
				InsecureSkipVerify: true, // For local development with self-signed certs
			}
		}

	case "SSL":
		config.Net.TLS.Enable = true
		config.Net.TLS.Config = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: true, // For local development with self-signed certs
		}

	default:
		return fmt.Errorf("unsupported security protocol: %s", sourceConfig.SecurityProtocol)
	}

	return nil
}
