package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers        []string
	KafkaGroupID        string
	ClinicalEventsTopic string
	EventIngestedTopic  string
	ReportUpdatedTopic  string

	// Extraction oracle
	OracleBaseURL      string
	OracleTokenURL     string
	OracleClientID     string
	OracleClientSecret string
	OracleModelName    string
	OracleTimeout      time.Duration
	OracleMaxRetries   int

	// Document collaborators
	DocumentIndexBaseURL string
	NoteIndexBaseURL     string
	CollaboratorTimeout  time.Duration

	// Detection / resolution tuning
	DetectionRulesPath   string
	RedactionRulesPath   string
	TerminologyPath      string
	ConfidenceFloor      float64
	AcceptanceFloor      float64
	EvidenceWindowDays   int
	MedicationWindowDays int
	PostSurgicalWindow   int

	// Pipeline
	PipelineWorkers int
	PatientLockTTL  time.Duration
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 4*1024*1024)),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "chronica"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "chronica123"),
		PostgresDB:       getEnv("POSTGRES_DB", "chronica"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:        getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:        getEnv("KAFKA_GROUP_ID", "chronica-platform"),
		ClinicalEventsTopic: getEnv("KAFKA_CLINICAL_EVENTS_TOPIC", "clinical-events"),
		EventIngestedTopic:  getEnv("KAFKA_EVENT_INGESTED_TOPIC", "timeline-event-ingested"),
		ReportUpdatedTopic:  getEnv("KAFKA_REPORT_UPDATED_TOPIC", "qa-report-updated"),

		OracleBaseURL:      getEnv("ORACLE_BASE_URL", "http://localhost:8090"),
		OracleTokenURL:     getEnv("ORACLE_TOKEN_URL", ""),
		OracleClientID:     getEnv("ORACLE_CLIENT_ID", ""),
		OracleClientSecret: getEnv("ORACLE_CLIENT_SECRET", ""),
		OracleModelName:    getEnv("ORACLE_MODEL_NAME", "extraction-reviewer-v2"),
		OracleTimeout:      getDuration("ORACLE_TIMEOUT", 45*time.Second),
		OracleMaxRetries:   getIntEnv("ORACLE_MAX_RETRIES", 3),

		DocumentIndexBaseURL: getEnv("DOCUMENT_INDEX_BASE_URL", "http://localhost:8091"),
		NoteIndexBaseURL:     getEnv("NOTE_INDEX_BASE_URL", "http://localhost:8092"),
		CollaboratorTimeout:  getDuration("COLLABORATOR_TIMEOUT", 10*time.Second),

		DetectionRulesPath:   getEnv("DETECTION_RULES_PATH", ""),
		RedactionRulesPath:   getEnv("REDACTION_RULES_PATH", ""),
		TerminologyPath:      getEnv("TERMINOLOGY_PATH", ""),
		ConfidenceFloor:      getFloatEnv("CONFIDENCE_FLOOR", 0.75),
		AcceptanceFloor:      getFloatEnv("ACCEPTANCE_FLOOR", 0.6),
		EvidenceWindowDays:   getIntEnv("EVIDENCE_WINDOW_DAYS", 7),
		MedicationWindowDays: getIntEnv("MEDICATION_WINDOW_DAYS", 30),
		PostSurgicalWindow:   getIntEnv("POST_SURGICAL_WINDOW_DAYS", 90),

		PipelineWorkers: getIntEnv("PIPELINE_WORKERS", 8),
		PatientLockTTL:  getDuration("PATIENT_LOCK_TTL", 10*time.Minute),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
