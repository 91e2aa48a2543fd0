package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/rupor-github/gencfg"
)

//go:embed config.yaml.tmpl
var ConfigTmpl []byte

type (
	// GenerationConfig describes remote completion service and fixed model
	// parameters used for every request.
	GenerationConfig struct {
		BaseURL         string        `yaml:"base_url" validate:"omitempty,url"`
		APIKey          SecretString  `yaml:"api_key"`
		Model           string        `yaml:"model" validate:"required"`
		Temperature     float64       `yaml:"temperature" validate:"gte=0,lte=2"`
		TopP            float64       `yaml:"top_p" validate:"gt=0,lte=1"`
		MaxOutputTokens int64         `yaml:"max_output_tokens" validate:"gte=0"`
		MaxRetries      int           `yaml:"max_retries" validate:"min=1,max=20"`
		RetryDelay      time.Duration `yaml:"retry_delay"`
		StreamOutput    bool          `yaml:"stream_output"`
	}

	BudgetConfig struct {
		MaxContextTokens int     `yaml:"max_context_tokens" validate:"min=1"`
		TokenBuffer      int     `yaml:"token_buffer" validate:"gte=0,ltfield=MaxContextTokens"`
		TokensPerChar    float64 `yaml:"tokens_per_char" validate:"gt=0,lte=4"`
	}

	PipelineConfig struct {
		DefaultChapters     int  `yaml:"default_chapters" validate:"min=1,max=200"`
		Enhance             bool `yaml:"enhance"`
		ProfileOutlineChars int  `yaml:"profile_outline_chars" validate:"min=100"`
		WriteContextChars   int  `yaml:"write_context_chars" validate:"min=100"`
		SummaryChapterChars int  `yaml:"summary_chapter_chars" validate:"min=100"`
		EnhanceOutlineChars int  `yaml:"enhance_outline_chars" validate:"min=100"`
	}

	OutputConfig struct {
		Directory             string    `yaml:"directory" sanitize:"path_clean" validate:"required"`
		Format                OutputFmt `yaml:"format"`
		FileNameTransliterate bool      `yaml:"file_name_transliterate"`
		FixZip                bool      `yaml:"fix_zip"`
		Journal               bool      `yaml:"journal"`
	}

	PDFConfig struct {
		PageWidth  float64 `yaml:"page_width" validate:"gt=0"`
		PageHeight float64 `yaml:"page_height" validate:"gt=0"`
		Margin     float64 `yaml:"margin" validate:"gte=0"`
		FontSize   float64 `yaml:"font_size" validate:"gte=6,lte=36"`
		Leading    float64 `yaml:"leading" validate:"gte=1,lte=3"`
	}

	EPUBConfig struct {
		Language string `yaml:"language" validate:"required"`
	}

	DocumentConfig struct {
		PDF  PDFConfig  `yaml:"pdf"`
		EPUB EPUBConfig `yaml:"epub"`
	}

	Config struct {
		Version    int              `yaml:"version" validate:"eq=1"`
		Generation GenerationConfig `yaml:"generation"`
		Budget     BudgetConfig     `yaml:"budget"`
		Pipeline   PipelineConfig   `yaml:"pipeline"`
		Output     OutputConfig     `yaml:"output"`
		Document   DocumentConfig   `yaml:"document"`
		Logging    LoggingConfig    `yaml:"logging"`
		Reporting  ReporterConfig   `yaml:"reporting"`
	}
)

func unmarshalConfig(data []byte, cfg *Config, process bool) (*Config, error) {
	// We want to use only fields we defined so we cannot use yaml.Unmarshal
	// directly here
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration data: %w", err)
	}
	if process {
		if err := gencfg.Sanitize(cfg); err != nil {
			return nil, err
		}
		if err := gencfg.Validate(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadConfiguration reads the configuration from the file at the given path,
// superimposes its values on top of expanded configuration tamplate to provide
// sane defaults and performs validation.
func LoadConfiguration(path string, options ...func(*gencfg.ProcessingOptions)) (*Config, error) {
	haveFile := len(path) > 0

	data, err := gencfg.Process(ConfigTmpl, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	cfg, err := unmarshalConfig(data, &Config{}, !haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	if !haveFile {
		return cfg, nil
	}

	data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err = unmarshalConfig(data, cfg, haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration file: %w", err)
	}
	return cfg, nil
}

// Prepare generates configuration file from template and returns it as a byte
// slice.
func Prepare() ([]byte, error) {
	return gencfg.Process(ConfigTmpl)
}

// Dump returns actual configuration as YAML, secrets are masked.
func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %v", err)
	}
	return data, nil
}

// ContextLimit is the largest estimated token size a context bundle may have.
func (c *BudgetConfig) ContextLimit() int {
	return c.MaxContextTokens - c.TokenBuffer
}
