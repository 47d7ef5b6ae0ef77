package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App           AppConfig
	Redis         RedisConfig
	Database      DatabaseConfig
	Elasticsearch ElasticsearchConfig
	Neo4j         Neo4jConfig
	LLM           LLMConfig
	Embedding     EmbeddingConfig
	Prompts       PromptConfig
	Features      FeatureFlags
}

type AppConfig struct {
	Port               string
	Environment        string
	LogLevel           string
	LogFilePath        string
	LogRotationMB      int
	LogRetentionDays   int
	CorsAllowedOrigins string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Enabled  bool
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	Charset  string
}

type ElasticsearchConfig struct {
	Addresses    []string
	Username     string
	Password     string
	KBIndex      string
	HistoryIndex string
	CypherIndex  string
	CypherTopK   int
	Timeout      time.Duration
}

type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Timeout  time.Duration
	Enabled  bool
}

// Scenario holds per-call-site generation parameters; every scenario is
// individually overridable through LLM_<SCENARIO>_* variables.
type Scenario struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

type LLMConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int

	IntentRecognition Scenario
	ChatGeneration    Scenario
	SummaryGeneration Scenario
	KnowledgeMatching Scenario
	Router            Scenario
	GraphIntent       Scenario
	GraphCypher       Scenario
	GraphSummary      Scenario
}

type EmbeddingConfig struct {
	BaseURL   string
	Model     string
	Dimension int
	Timeout   time.Duration
}

type FeatureFlags struct {
	KnowledgeMatching  bool
	IntentParser       bool
	KnowledgeRetrieval bool
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	// The *_NAME and ES_KNOWLEDGE/ES_CONVERSATION keys are canonical;
	// the short forms remain as fallbacks for older .env files.
	defaultModel := getEnv("LLM_MODEL_NAME", getEnv("LLM_MODEL", "qwen-plus"))

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "8000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogLevel:           getEnv("LOG_LEVEL", "INFO"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			LogRotationMB:      getEnvAsInt("LOG_ROTATION", 10),
			LogRetentionDays:   getEnvAsInt("LOG_RETENTION", 30),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
		},
		Database: DatabaseConfig{
			Host:     getEnv("MYSQL_HOST", "localhost"),
			Port:     getEnvAsInt("MYSQL_PORT", 3306),
			User:     getEnv("MYSQL_USER", "chatuser"),
			Password: getEnv("MYSQL_PASSWORD", "ChangeMe123!"),
			DBName:   getEnv("MYSQL_DATABASE", "chatdb"),
			Charset:  getEnv("MYSQL_CHARSET", "utf8mb4"),
		},
		Elasticsearch: ElasticsearchConfig{
			Addresses:    splitAddresses(getEnv("ES_HOSTS", "http://localhost:9200")),
			Username:     getEnv("ES_USERNAME", "elastic"),
			Password:     getEnv("ES_PASSWORD", "password01"),
			KBIndex:      getEnv("ES_KNOWLEDGE_INDEX", getEnv("ES_KB_INDEX", "kb_vector_store")),
			HistoryIndex: getEnv("ES_CONVERSATION_INDEX", getEnv("ES_HISTORY_INDEX", "conversation_history")),
			CypherIndex:  getEnv("ES_CYPHER_INDEX", "qa_system"),
			CypherTopK:   getEnvAsInt("ES_CYPHER_TOP_K", 1),
			Timeout:      getEnvAsSeconds("ES_TIMEOUT", 30),
		},
		Neo4j: Neo4jConfig{
			URI:      getEnv("NEO4J_URI", "bolt://localhost:7687"),
			Username: getEnv("NEO4J_USERNAME", "neo4j"),
			Password: getEnv("NEO4J_PASSWORD", "ChangeMe123!"),
			Timeout:  getEnvAsSeconds("NEO4J_TIMEOUT", 15),
			Enabled:  getEnvAsBool("NEO4J_ENABLED", true),
		},
		LLM: LLMConfig{
			BaseURL:    getEnv("LLM_BASE_URL", "https://dashscope.aliyuncs.com/compatible-mode/v1"),
			APIKey:     getEnv("LLM_API_KEY", ""),
			Model:      defaultModel,
			Timeout:    getEnvAsSeconds("LLM_TIMEOUT", 120),
			MaxRetries: getEnvAsInt("LLM_MAX_RETRIES", 3),

			IntentRecognition: loadScenario("INTENT_RECOGNITION", defaultModel, 0.3, 500),
			ChatGeneration:    loadScenario("CHAT_GENERATION", defaultModel, 0.7, 4000),
			SummaryGeneration: loadScenario("SUMMARY_GENERATION", defaultModel, 0.5, 200),
			KnowledgeMatching: loadScenario("KNOWLEDGE_MATCHING", defaultModel, 0.3, 1000),
			Router:            loadScenario("ROUTER", defaultModel, 0.1, 500),
			GraphIntent:       loadScenario("GRAPH_INTENT", defaultModel, 0.0, 8000),
			GraphCypher:       loadScenario("GRAPH_CYPHER", defaultModel, 0.0, 8000),
			GraphSummary:      loadScenario("GRAPH_SUMMARY", defaultModel, 0.0, 8000),
		},
		Embedding: EmbeddingConfig{
			BaseURL:   getEnv("EMBEDDING_BASE_URL", "http://localhost:8000"),
			Model:     getEnv("EMBEDDING_MODEL_NAME", getEnv("EMBEDDING_MODEL", "bge-large-zh")),
			Dimension: getEnvAsInt("EMBEDDING_DIMENSION", 1024),
			Timeout:   getEnvAsSeconds("EMBEDDING_TIMEOUT", 30),
		},
		Prompts: loadPrompts(),
		Features: FeatureFlags{
			KnowledgeMatching:  getEnvAsBool("KNOWLEDGE_MATCHING_ENABLED", true),
			IntentParser:       getEnvAsBool("INTENT_PARSER_ENABLED", true),
			KnowledgeRetrieval: getEnvAsBool("KNOWLEDGE_RETRIEVAL_ENABLED", true),
		},
	}
}

func loadScenario(name, defaultModel string, defaultTemperature float64, defaultMaxTokens int) Scenario {
	prefix := "LLM_" + name
	return Scenario{
		Model:       getEnv(prefix+"_MODEL", defaultModel),
		Temperature: getEnvAsFloat(prefix+"_TEMPERATURE", defaultTemperature),
		MaxTokens:   getEnvAsInt(prefix+"_MAX_TOKENS", defaultMaxTokens),
	}
}

func splitAddresses(raw string) []string {
	var addresses []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			addresses = append(addresses, part)
		}
	}
	return addresses
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsSeconds(key string, fallback int) time.Duration {
	return time.Duration(getEnvAsInt(key, fallback)) * time.Second
}
