package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/Dhoini/fitness-billing-service/internal/config"
	"github.com/Dhoini/fitness-billing-service/pkg/logger"

	kafkaGo "github.com/segmentio/kafka-go"
)

// requiredTopics возвращает топики, которые публикует сервис.
func requiredTopics(cfg config.KafkaConfig) map[string]kafkaGo.TopicConfig {
	return map[string]kafkaGo.TopicConfig{
		cfg.SubscriptionTopic: {
			Topic:             cfg.SubscriptionTopic,
			NumPartitions:     3,
			ReplicationFactor: 1,
		},
		cfg.PaymentTopic: {
			Topic:             cfg.PaymentTopic,
			NumPartitions:     3,
			ReplicationFactor: 1,
		},
	}
}

// EnsureKafkaTopics проверяет и создает необходимые топики Kafka через контроллер кластера.
func EnsureKafkaTopics(ctx context.Context, cfg config.KafkaConfig, log *logger.Logger) error {
	topics := requiredTopics(cfg)
	log.Infow("Ensuring Kafka topics exist...", "topics", getTopicNames(topics))

	if len(cfg.Brokers) == 0 || strings.TrimSpace(cfg.Brokers[0]) == "" {
		log.Errorw("Kafka broker address is empty")
		return errors.New("kafka broker address is empty")
	}
	broker := strings.TrimSpace(cfg.Brokers[0])
	if _, portStr, err := net.SplitHostPort(broker); err != nil {
		return fmt.Errorf("invalid broker address %s: %w", broker, err)
	} else if _, err := strconv.Atoi(portStr); err != nil {
		return fmt.Errorf("invalid broker port %s: %w", broker, err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, err := kafkaGo.DialContext(connCtx, "tcp", broker)
	if err != nil {
		log.Errorw("Failed to connect to Kafka broker for topic creation", "broker", broker, "error", err)
		return fmt.Errorf("kafka connection failed: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("kafka controller lookup failed: %w", err)
	}
	controllerAddr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	ctrlConn, err := kafkaGo.DialContext(connCtx, "tcp", controllerAddr)
	if err != nil {
		return fmt.Errorf("kafka controller connection failed: %w", err)
	}
	defer ctrlConn.Close()
	log.Debugw("Connected to Kafka controller", "address", controllerAddr)

	partitions, err := ctrlConn.ReadPartitions()
	if err != nil {
		log.Errorw("Failed to read partitions from Kafka", "error", err)
		return fmt.Errorf("kafka read partitions failed: %w", err)
	}
	existing := make(map[string]bool)
	for _, p := range partitions {
		existing[p.Topic] = true
	}

	toCreate := missingTopics(topics, existing)
	if len(toCreate) == 0 {
		log.Infow("All required topics already exist.")
		return nil
	}

	log.Infow("Attempting to create topics...", "topics", getTopicNamesFromConfig(toCreate))
	if err := ctrlConn.CreateTopics(toCreate...); err != nil {
		if errors.Is(err, kafkaGo.TopicAlreadyExists) {
			log.Warnw("One or more topics already existed during creation attempt", "topics", getTopicNamesFromConfig(toCreate))
			return nil
		}
		log.Errorw("Failed to create topics", "error", err, "topics", getTopicNamesFromConfig(toCreate))
		return fmt.Errorf("kafka create topics failed: %w", err)
	}

	log.Infow("Successfully created topics", "topics", getTopicNamesFromConfig(toCreate))
	return nil
}

func missingTopics(required map[string]kafkaGo.TopicConfig, existing map[string]bool) []kafkaGo.TopicConfig {
	var out []kafkaGo.TopicConfig
	for name, cfg := range required {
		if !existing[name] {
			out = append(out, cfg)
		}
	}
	return out
}

func getTopicNames(topicMap map[string]kafkaGo.TopicConfig) []string {
	names := make([]string, 0, len(topicMap))
	for name := range topicMap {
		names = append(names, name)
	}
	return names
}

func getTopicNamesFromConfig(topicConfigs []kafkaGo.TopicConfig) []string {
	names := make([]string, 0, len(topicConfigs))
	for _, tc := range topicConfigs {
		names = append(names, tc.Topic)
	}
	return names
}
