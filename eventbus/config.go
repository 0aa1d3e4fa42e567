package eventbus

import (
	"os"
)

// GetBrokers returns Kafka bootstrap servers from env KAFKA_BOOTSTRAP_SERVERS
func GetBrokers() string {
	v := os.Getenv("KAFKA_BOOTSTRAP_SERVERS")
	if v == "" {
		panic("KAFKA_BOOTSTRAP_SERVERS environment variable is required")
	}
	return v
}

// GetGroupID returns the consumer group id from env KAFKA_GROUP_ID. All
// pipeline workers share one group so phase events are load-balanced.
func GetGroupID() string {
	if v := os.Getenv("KAFKA_GROUP_ID"); v != "" {
		return v
	}
	return "town-desk-worker"
}
