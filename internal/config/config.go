package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Database *dbConfig
	Service  *svcConfig
	Storage  *storageConfig
	Analysis *analysisConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"sqlite"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"jobs.db"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

type svcConfig struct {
	Address         string        `envconfig:"MEDIA_ANALYZER_ADDRESS" default:":8000"`
	MetricsAddress  string        `envconfig:"MEDIA_ANALYZER_METRICS_ADDRESS" default:":8080"`
	BaseUrl         string        `envconfig:"MEDIA_ANALYZER_BASE_URL" default:"http://localhost:8000"`
	LogLevel        string        `envconfig:"MEDIA_ANALYZER_LOG_LEVEL" default:"info"`
	LogFormat       string        `envconfig:"MEDIA_ANALYZER_LOG_FORMAT" default:"console"`
	MigrationFolder string        `envconfig:"MEDIA_ANALYZER_MIGRATIONS_FOLDER" default:""`
	MaxUploadSize   int64         `envconfig:"MEDIA_ANALYZER_MAX_UPLOAD_SIZE" default:"10737418240"`
	Workers         int           `envconfig:"MEDIA_ANALYZER_WORKERS" default:"2"`
	QueueSize       int           `envconfig:"MEDIA_ANALYZER_QUEUE_SIZE" default:"100"`
	ShutdownTimeout time.Duration `envconfig:"MEDIA_ANALYZER_SHUTDOWN_TIMEOUT" default:"30s"`
	EventsTopic     string        `envconfig:"MEDIA_ANALYZER_EVENTS_TOPIC" default:"media.analyzer.events"`
}

type storageConfig struct {
	UploadDir  string `envconfig:"MEDIA_ANALYZER_UPLOAD_DIR" default:"uploads"`
	ChunksDir  string `envconfig:"MEDIA_ANALYZER_CHUNKS_DIR" default:"chunks"`
	ReportsDir string `envconfig:"MEDIA_ANALYZER_REPORTS_DIR" default:"reports"`
	// Backend selects where report artifacts are kept: "local" or "s3".
	Backend string `envconfig:"MEDIA_ANALYZER_REPORTS_BACKEND" default:"local"`
	S3      s3Config
}

type s3Config struct {
	Endpoint  string `envconfig:"MEDIA_ANALYZER_S3_ENDPOINT" default:""`
	Bucket    string `envconfig:"MEDIA_ANALYZER_S3_BUCKET" default:"reports"`
	AccessKey string `envconfig:"MEDIA_ANALYZER_S3_ACCESS_KEY" default:""`
	SecretKey string `envconfig:"MEDIA_ANALYZER_S3_SECRET_KEY" default:""`
	UseSSL    bool   `envconfig:"MEDIA_ANALYZER_S3_USE_SSL" default:"false"`
}

type analysisConfig struct {
	FFmpegPath      string        `envconfig:"MEDIA_ANALYZER_FFMPEG_PATH" default:"ffmpeg"`
	SegmentDuration time.Duration `envconfig:"MEDIA_ANALYZER_SEGMENT_DURATION" default:"300s"`
	SegmentFormat   string        `envconfig:"MEDIA_ANALYZER_SEGMENT_FORMAT" default:"mp4"`
	SegmentTimeout  time.Duration `envconfig:"MEDIA_ANALYZER_SEGMENT_TIMEOUT" default:"5m"`
	Concurrency     int           `envconfig:"MEDIA_ANALYZER_ANALYSIS_CONCURRENCY" default:"1"`
	ApiKey          string        `envconfig:"GEMINI_API_KEY" default:""`
	Model           string        `envconfig:"MEDIA_ANALYZER_MODEL" default:"gemini-2.5-flash"`
	MimeType        string        `envconfig:"MEDIA_ANALYZER_SEGMENT_MIME_TYPE" default:"video/mp4"`
	Prompt          string        `envconfig:"MEDIA_ANALYZER_PROMPT" default:""`
}

// New reads the configuration from the environment. Every call returns a fresh value.
func New() (*Config, error) {
	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewDefault returns the built-in defaults without looking at the environment.
func NewDefault() *Config {
	return &Config{
		Database: &dbConfig{
			Type:     "sqlite",
			Hostname: "localhost",
			Port:     "5432",
			Name:     "jobs.db",
			User:     "admin",
			Password: "adminpass",
		},
		Service: &svcConfig{
			Address:         ":8000",
			MetricsAddress:  ":8080",
			BaseUrl:         "http://localhost:8000",
			LogLevel:        "info",
			LogFormat:       "console",
			MaxUploadSize:   10 << 30,
			Workers:         2,
			QueueSize:       100,
			ShutdownTimeout: 30 * time.Second,
			EventsTopic:     "media.analyzer.events",
		},
		Storage: &storageConfig{
			UploadDir:  "uploads",
			ChunksDir:  "chunks",
			ReportsDir: "reports",
			Backend:    "local",
			S3:         s3Config{Bucket: "reports"},
		},
		Analysis: &analysisConfig{
			FFmpegPath:      "ffmpeg",
			SegmentDuration: 300 * time.Second,
			SegmentFormat:   "mp4",
			SegmentTimeout:  5 * time.Minute,
			Concurrency:     1,
			Model:           "gemini-2.5-flash",
			MimeType:        "video/mp4",
		},
	}
}
