package config

import (
	"os"
	"time"
)

// Kafka captures the bus subscription configuration.
type Kafka struct {
	BootstrapServers   string
	Topic              string
	GroupID            string
	DLQTopic           string
	AutoCommitInterval time.Duration
}

// AuthServer captures the identity service client configuration.
type AuthServer struct {
	APIBaseURL           string
	TokenEndpoint        string
	ClientID             string
	ClientSecret         string
	Scopes               string
	UserEndpointTemplate string
	TokenTimeout         time.Duration
	FetchTimeout         time.Duration
}

// Config is the immutable process configuration, built once at startup and
// passed down by parameter. Deep logic never reads the environment.
type Config struct {
	Kafka       Kafka
	AuthServer  AuthServer
	DatabaseURL string
	OpsAddr     string
	Environment string
}

// FromEnv builds a Config from environment variables so main stays lean.
// Defaults are suitable for local development against the demo authserver.
func FromEnv() Config {
	return Config{
		Kafka: Kafka{
			BootstrapServers:   getenv("KAFKA_BOOTSTRAP_SERVERS", "localhost:9092"),
			Topic:              getenv("KAFKA_USER_CREATED_TOPIC", "user.created"),
			GroupID:            getenv("KAFKA_CONSUMER_GROUP", "open-webui-user-provisioning-group"),
			DLQTopic:           os.Getenv("KAFKA_DLQ_TOPIC"),
			AutoCommitInterval: getduration("KAFKA_AUTO_COMMIT_INTERVAL", 5*time.Second),
		},
		AuthServer: AuthServer{
			APIBaseURL:           getenv("AUTHSERVER_API_BASE_URL", "http://localhost:8881/api"),
			TokenEndpoint:        getenv("AUTHSERVER_TOKEN_ENDPOINT", "http://localhost:8881/oauth2/token"),
			ClientID:             getenv("AUTHSERVER_CLIENT_ID", "demo-service-client"),
			ClientSecret:         getenv("AUTHSERVER_CLIENT_SECRET", "demo-service-secret"),
			Scopes:               getenv("AUTHSERVER_SCOPES", "internal.read"),
			UserEndpointTemplate: getenv("AUTHSERVER_USER_ENDPOINT_TEMPLATE", "/users/%s"),
			TokenTimeout:         getduration("AUTHSERVER_TOKEN_TIMEOUT", 10*time.Second),
			FetchTimeout:         getduration("AUTHSERVER_FETCH_TIMEOUT", 10*time.Second),
		},
		DatabaseURL: os.Getenv("DATABASE_URL"),
		OpsAddr:     getenv("OPS_ADDR", ":8080"),
		Environment: getenv("ENVIRONMENT", "development"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
