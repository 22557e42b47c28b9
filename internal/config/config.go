package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"drive-ocr/internal/internalerr"
)

const (
	ModeShared  = "shared"
	ModePerFile = "per-file"

	PlacementEnd   = "end"
	PlacementStart = "start"

	EngineVision = "vision"
	EngineGemini = "gemini"

	LedgerDrive    = "drive"
	LedgerPostgres = "postgres"
	LedgerSQLite   = "sqlite"
	LedgerNone     = "none"
)

type Config struct {
	CredentialsFile string `yaml:"credentials_file"`

	SourceFolderID string `yaml:"source_folder_id"`
	DoneFolderID   string `yaml:"done_folder_id"`
	TargetDocID    string `yaml:"target_doc_id"`
	MaxFiles       int    `yaml:"max_files"`

	OutputMode       string `yaml:"output_mode"`       // shared | per-file
	InsertPlacement  string `yaml:"insert_placement"`  // end | start
	DocRevisionCheck bool   `yaml:"doc_revision_check"`

	DetectObjects bool `yaml:"detect_objects"`
	PublishLinks  bool `yaml:"publish_links"`
	ConvertImages bool `yaml:"convert_images"`
	MaxDimension  int  `yaml:"normalize_max_dimension"`

	RecognitionEngine string   `yaml:"recognition_engine"` // vision | gemini
	OCRFeature        string   `yaml:"ocr_feature"`
	OCRLangs          []string `yaml:"ocr_langs"`
	GeminiAPIKey      string   `yaml:"gemini_api_key"`
	GeminiModel       string   `yaml:"gemini_model"`

	Ledger    string `yaml:"ledger"` // drive | postgres | sqlite | none
	LedgerDSN string `yaml:"ledger_dsn"`

	TelegramBotToken string `yaml:"telegram_bot_token"`
	TelegramChatID   int64  `yaml:"telegram_chat_id"`

	PushgatewayURL string `yaml:"pushgateway_url"`
}

func defaults() *Config {
	return &Config{
		MaxFiles:          10,
		OutputMode:        ModeShared,
		InsertPlacement:   PlacementEnd,
		ConvertImages:     true,
		RecognitionEngine: EngineVision,
		OCRFeature:        "TEXT_DETECTION",
		GeminiModel:       "gemini-2.5-flash",
		Ledger:            LedgerDrive,
	}
}

// Load reads CONFIG_FILE (if set) and then lets the environment override it.
func Load() (*Config, error) {
	cfg := defaults()
	if p := strings.TrimSpace(os.Getenv("CONFIG_FILE")); p != "" {
		if err := cfg.loadFile(p); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read %s: %w", internalerr.ErrConfiguration, path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("%w: parse %s: %w", internalerr.ErrConfiguration, path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.CredentialsFile = getEnv("GOOGLE_APPLICATION_CREDENTIALS", c.CredentialsFile)
	c.SourceFolderID = getEnv("SOURCE_FOLDER_ID", c.SourceFolderID)
	c.DoneFolderID = getEnv("DONE_FOLDER_ID", c.DoneFolderID)
	c.TargetDocID = getEnv("TARGET_DOC_ID", c.TargetDocID)
	c.OutputMode = strings.ToLower(getEnv("OUTPUT_MODE", c.OutputMode))
	c.InsertPlacement = strings.ToLower(getEnv("INSERT_PLACEMENT", c.InsertPlacement))
	c.RecognitionEngine = strings.ToLower(getEnv("RECOGNITION_ENGINE", c.RecognitionEngine))
	c.OCRFeature = strings.ToUpper(getEnv("OCR_FEATURE", c.OCRFeature))
	c.GeminiAPIKey = getEnv("GEMINI_API_KEY", c.GeminiAPIKey)
	c.GeminiModel = getEnv("GEMINI_MODEL", c.GeminiModel)
	c.Ledger = strings.ToLower(getEnv("LEDGER", c.Ledger))
	c.LedgerDSN = getEnv("LEDGER_DSN", c.LedgerDSN)
	c.TelegramBotToken = getEnv("TELEGRAM_BOT_TOKEN", c.TelegramBotToken)
	c.PushgatewayURL = getEnv("PUSHGATEWAY_URL", c.PushgatewayURL)

	if v := strings.TrimSpace(os.Getenv("OCR_LANGS")); v != "" {
		c.OCRLangs = splitList(v)
	}

	var err error
	if c.MaxFiles, err = getInt("MAX_FILES", c.MaxFiles); err != nil {
		return err
	}
	if c.MaxDimension, err = getInt("NORMALIZE_MAX_DIMENSION", c.MaxDimension); err != nil {
		return err
	}
	if c.TelegramChatID, err = getInt64("TELEGRAM_CHAT_ID", c.TelegramChatID); err != nil {
		return err
	}
	for key, dst := range map[string]*bool{
		"DETECT_OBJECTS":     &c.DetectObjects,
		"PUBLISH_LINKS":      &c.PublishLinks,
		"CONVERT_IMAGES":     &c.ConvertImages,
		"DOC_REVISION_CHECK": &c.DocRevisionCheck,
	} {
		if *dst, err = getBool(key, *dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks required keys and enumerations.
func (c *Config) Validate() error {
	missing := func(k string) error {
		return fmt.Errorf("%w: missing required %s", internalerr.ErrConfiguration, k)
	}
	if strings.TrimSpace(c.CredentialsFile) == "" {
		return missing("GOOGLE_APPLICATION_CREDENTIALS")
	}
	if c.SourceFolderID == "" {
		return missing("SOURCE_FOLDER_ID")
	}
	if c.DoneFolderID == "" {
		return missing("DONE_FOLDER_ID")
	}
	if c.MaxFiles <= 0 {
		return fmt.Errorf("%w: MAX_FILES must be positive, got %d", internalerr.ErrConfiguration, c.MaxFiles)
	}
	switch c.OutputMode {
	case ModeShared:
		if c.TargetDocID == "" {
			return missing("TARGET_DOC_ID")
		}
	case ModePerFile:
	default:
		return fmt.Errorf("%w: unknown OUTPUT_MODE %q", internalerr.ErrConfiguration, c.OutputMode)
	}
	switch c.InsertPlacement {
	case PlacementEnd, PlacementStart:
	default:
		return fmt.Errorf("%w: unknown INSERT_PLACEMENT %q", internalerr.ErrConfiguration, c.InsertPlacement)
	}
	switch c.RecognitionEngine {
	case EngineVision:
	case EngineGemini:
		if c.GeminiAPIKey == "" {
			return missing("GEMINI_API_KEY")
		}
	default:
		return fmt.Errorf("%w: unknown RECOGNITION_ENGINE %q", internalerr.ErrConfiguration, c.RecognitionEngine)
	}
	switch c.Ledger {
	case LedgerDrive, LedgerNone:
	case LedgerPostgres, LedgerSQLite:
		if c.LedgerDSN == "" {
			return missing("LEDGER_DSN")
		}
	default:
		return fmt.Errorf("%w: unknown LEDGER %q", internalerr.ErrConfiguration, c.Ledger)
	}
	if (c.TelegramBotToken == "") != (c.TelegramChatID == 0) {
		return fmt.Errorf("%w: TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together", internalerr.ErrConfiguration)
	}
	return nil
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", internalerr.ErrConfiguration, k, err)
	}
	return n, nil
}

func getInt64(k string, def int64) (int64, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", internalerr.ErrConfiguration, k, err)
	}
	return n, nil
}

func getBool(k string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %w", internalerr.ErrConfiguration, k, err)
	}
	return b, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
