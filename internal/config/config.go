package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress     string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	MetricsToken    string

	LLMProvider     string
	CerebrasKey     string
	CerebrasModelID string
	OpenAIKey       string
	OpenAIModel     string
	WhisperModel    string

	TTSProvider       string
	ElevenLabsKey     string
	ElevenLabsVoiceID string
	DeepgramKey       string
	DeepgramModel     string

	StoreDriver    string
	DatabaseURL    string
	AutoMigrate    bool
	SupabaseURL    string
	SupabaseKey    string
	SupabaseBucket string
	MediaDriver    string
	UploadsDir     string
	TempDir        string

	InterviewDuration time.Duration
	NaturalEndGrace   time.Duration
	ForcedEndGrace    time.Duration
	CloseDelay        time.Duration
	FollowUpAt        int
	QuestionsFile     string
}

// Drivers and providers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSupabase = "supabase"

	MediaLocal    = "local"
	MediaSupabase = "supabase"

	LLMCerebras = "cerebras"
	LLMOpenAI   = "openai"

	TTSElevenLabs = "elevenlabs"
	TTSDeepgram   = "deepgram"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_address", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("shutdown_timeout", 10*time.Second)
	v.SetDefault("llm_provider", LLMCerebras)
	v.SetDefault("cerebras_model_id", "gpt-oss-120b")
	v.SetDefault("openai_model", "gpt-4o-mini")
	v.SetDefault("whisper_model", "whisper-1")
	v.SetDefault("tts_provider", TTSElevenLabs)
	v.SetDefault("deepgram_model", "aura-asteria-en")
	v.SetDefault("store_driver", StoreMemory)
	v.SetDefault("supabase_bucket", "interview-media")
	v.SetDefault("media_driver", MediaLocal)
	v.SetDefault("uploads_dir", "./uploads")
	v.SetDefault("interview_duration", 10*time.Minute)
	v.SetDefault("natural_end_grace", 3*time.Second)
	v.SetDefault("forced_end_grace", 5*time.Second)
	v.SetDefault("close_delay", 2*time.Second)
	v.SetDefault("follow_up_at", 1)
}

// LoadDotEnv loads .env into the process environment if the file exists.
func LoadDotEnv() error {
	return godotenv.Load()
}

// Load resolves configuration from v: bound flags first, then environment
// variables (HTTP_ADDRESS, CEREBRAS_API_KEY, ...), then defaults.
func Load(v *viper.Viper) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	setDefaults(v)
	v.AutomaticEnv()

	cfg := Config{
		HTTPAddress:     v.GetString("http_address"),
		LogLevel:        v.GetString("log_level"),
		LogFormat:       v.GetString("log_format"),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
		MetricsToken:    v.GetString("metrics_token"),

		LLMProvider:     strings.ToLower(v.GetString("llm_provider")),
		CerebrasKey:     v.GetString("cerebras_api_key"),
		CerebrasModelID: v.GetString("cerebras_model_id"),
		OpenAIKey:       v.GetString("openai_api_key"),
		OpenAIModel:     v.GetString("openai_model"),
		WhisperModel:    v.GetString("whisper_model"),

		TTSProvider:       strings.ToLower(v.GetString("tts_provider")),
		ElevenLabsKey:     v.GetString("elevenlabs_api_key"),
		ElevenLabsVoiceID: v.GetString("elevenlabs_voice_id"),
		DeepgramKey:       v.GetString("deepgram_api_key"),
		DeepgramModel:     v.GetString("deepgram_model"),

		StoreDriver:    strings.ToLower(v.GetString("store_driver")),
		DatabaseURL:    v.GetString("database_url"),
		AutoMigrate:    v.GetBool("auto_migrate"),
		SupabaseURL:    v.GetString("supabase_url"),
		SupabaseKey:    v.GetString("supabase_service_role_key"),
		SupabaseBucket: v.GetString("supabase_bucket"),
		MediaDriver:    strings.ToLower(v.GetString("media_driver")),
		UploadsDir:     v.GetString("uploads_dir"),
		TempDir:        v.GetString("temp_dir"),

		InterviewDuration: v.GetDuration("interview_duration"),
		NaturalEndGrace:   v.GetDuration("natural_end_grace"),
		ForcedEndGrace:    v.GetDuration("forced_end_grace"),
		CloseDelay:        v.GetDuration("close_delay"),
		FollowUpAt:        v.GetInt("follow_up_at"),
		QuestionsFile:     v.GetString("questions_file"),
	}
	return cfg, cfg.Validate()
}

// Validate reports every configuration problem that would stop the server.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTPAddress) == "" {
		errs = append(errs, errors.New("HTTP_ADDRESS must not be empty"))
	}
	switch c.LLMProvider {
	case LLMCerebras, LLMOpenAI:
	default:
		errs = append(errs, fmt.Errorf("LLM_PROVIDER must be %q or %q, got %q", LLMCerebras, LLMOpenAI, c.LLMProvider))
	}
	switch c.TTSProvider {
	case TTSElevenLabs, TTSDeepgram:
	default:
		errs = append(errs, fmt.Errorf("TTS_PROVIDER must be %q or %q, got %q", TTSElevenLabs, TTSDeepgram, c.TTSProvider))
	}
	switch c.StoreDriver {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when STORE_DRIVER=postgres"))
		}
	case StoreSupabase:
		if c.SupabaseURL == "" || c.SupabaseKey == "" {
			errs = append(errs, errors.New("SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY are required when STORE_DRIVER=supabase"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be memory, postgres or supabase, got %q", c.StoreDriver))
	}
	switch c.MediaDriver {
	case MediaLocal:
		if c.UploadsDir == "" {
			errs = append(errs, errors.New("UPLOADS_DIR is required when MEDIA_DRIVER=local"))
		}
	case MediaSupabase:
		if c.SupabaseURL == "" || c.SupabaseKey == "" || c.SupabaseBucket == "" {
			errs = append(errs, errors.New("SUPABASE_URL, SUPABASE_SERVICE_ROLE_KEY and SUPABASE_BUCKET are required when MEDIA_DRIVER=supabase"))
		}
	default:
		errs = append(errs, fmt.Errorf("MEDIA_DRIVER must be local or supabase, got %q", c.MediaDriver))
	}
	for name, d := range map[string]time.Duration{
		"INTERVIEW_DURATION": c.InterviewDuration,
		"NATURAL_END_GRACE":  c.NaturalEndGrace,
		"FORCED_END_GRACE":   c.ForcedEndGrace,
		"CLOSE_DELAY":        c.CloseDelay,
		"SHUTDOWN_TIMEOUT":   c.ShutdownTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	return errors.Join(errs...)
}

// Warnings lists missing credentials that leave a feature degraded but do not
// stop the server.
func (c Config) Warnings() []string {
	var out []string
	warn := func(key, what string) {
		out = append(out, fmt.Sprintf("Warning: %s not set - %s will not work", key, what))
	}
	switch c.LLMProvider {
	case LLMCerebras:
		if c.CerebrasKey == "" {
			warn("CEREBRAS_API_KEY", "LLM")
		}
	case LLMOpenAI:
		if c.OpenAIKey == "" {
			warn("OPENAI_API_KEY", "LLM")
		}
	}
	if c.OpenAIKey == "" {
		warn("OPENAI_API_KEY", "transcription")
	}
	switch c.TTSProvider {
	case TTSElevenLabs:
		if c.ElevenLabsKey == "" {
			warn("ELEVENLABS_API_KEY", "TTS")
		}
		if c.ElevenLabsVoiceID == "" {
			warn("ELEVENLABS_VOICE_ID", "TTS")
		}
	case TTSDeepgram:
		if c.DeepgramKey == "" {
			warn("DEEPGRAM_API_KEY", "TTS")
		}
	}
	return out
}
