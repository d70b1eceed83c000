package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "voicecal"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage voicecal configuration.

Running bare 'voicecal config' is the same as 'voicecal config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# voicecal configuration
# See: voicecal config show (for effective values and sources)

# State/data directory (default: ~/.config/voicecal)
# state_dir: {{ .StateDir }}

# SQLite database path (default: ~/.config/voicecal/voicecal.db)
# db_path: {{ .DBPath }}

# Speaker id used by the CLI and the MCP server
user: "{{ .User }}"

# IANA timezone for spoken times ("Local" uses the system zone)
timezone: "{{ .Timezone }}"

log:
  level: "{{ .LogLevel }}"    # debug, info, warn, error
  format: "{{ .LogFormat }}"  # text or json

# Model-backed extraction. Without a key the rule-based extractor is used.
anthropic:
  # api_key: ""
  model: "{{ .Model }}"

conversation:
  # Idle time before an open conversation expires
  ttl: "{{ .TTL }}"
  # Candidates below this confidence are confirmed before acting
  confidence_threshold: {{ .Threshold }}

conflict:
  # Suggested slots stay inside working hours
  work_start: "{{ .WorkStart }}"
  work_end: "{{ .WorkEnd }}"

# Calendars consulted for conflicts. The built-in "local" calendar is always
# available and writable.
# calendars:
#   - id: team
#     name: Team
#     type: ics
#     url: https://example.com/team.ics
#   - id: work
#     type: google
#     calendar_id: primary
#     token: ""
#     writable: true
# default_calendar: local

# People the extractor can resolve spoken names to.
# contacts:
#   - name: Dana Lee
#     email: dana@example.com
`

type configTemplateData struct {
	StateDir  string
	DBPath    string
	User      string
	Timezone  string
	LogLevel  string
	LogFormat string
	Model     string
	TTL       string
	Threshold float64
	WorkStart string
	WorkEnd   string
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		StateDir:  viper.GetString("state_dir"),
		DBPath:    viper.GetString("db_path"),
		User:      viper.GetString("user"),
		Timezone:  viper.GetString("timezone"),
		LogLevel:  viper.GetString("log.level"),
		LogFormat: viper.GetString("log.format"),
		Model:     viper.GetString("anthropic.model"),
		TTL:       viper.GetDuration("conversation.ttl").String(),
		Threshold: viper.GetFloat64("conversation.confidence_threshold"),
		WorkStart: viper.GetString("conflict.work_start"),
		WorkEnd:   viper.GetString("conflict.work_end"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
}

var configKeys = []configKeyInfo{
	{Key: "state_dir", EnvVar: "VOICECAL_STATE_DIR"},
	{Key: "db_path", EnvVar: "VOICECAL_DB_PATH"},
	{Key: "user", EnvVar: "VOICECAL_USER"},
	{Key: "timezone", EnvVar: "VOICECAL_TIMEZONE"},
	{Key: "log.level", EnvVar: "VOICECAL_LOG_LEVEL"},
	{Key: "log.format", EnvVar: "VOICECAL_LOG_FORMAT"},
	{Key: "anthropic.model", EnvVar: "VOICECAL_ANTHROPIC_MODEL"},
	{Key: "extraction.timeout", EnvVar: "VOICECAL_EXTRACTION_TIMEOUT"},
	{Key: "extraction.max_options", EnvVar: "VOICECAL_EXTRACTION_MAX_OPTIONS"},
	{Key: "conversation.ttl", EnvVar: "VOICECAL_CONVERSATION_TTL"},
	{Key: "conversation.confidence_threshold", EnvVar: "VOICECAL_CONVERSATION_CONFIDENCE_THRESHOLD"},
	{Key: "conversation.retention", EnvVar: "VOICECAL_CONVERSATION_RETENTION"},
	{Key: "conversation.sweep_interval", EnvVar: "VOICECAL_CONVERSATION_SWEEP_INTERVAL"},
	{Key: "speech.min_confidence", EnvVar: "VOICECAL_SPEECH_MIN_CONFIDENCE"},
	{Key: "conflict.provider_timeout", EnvVar: "VOICECAL_CONFLICT_PROVIDER_TIMEOUT"},
	{Key: "conflict.aggregate_timeout", EnvVar: "VOICECAL_CONFLICT_AGGREGATE_TIMEOUT"},
	{Key: "conflict.horizon", EnvVar: "VOICECAL_CONFLICT_HORIZON"},
	{Key: "conflict.step", EnvVar: "VOICECAL_CONFLICT_STEP"},
	{Key: "conflict.max_suggestions", EnvVar: "VOICECAL_CONFLICT_MAX_SUGGESTIONS"},
	{Key: "conflict.min_buffer", EnvVar: "VOICECAL_CONFLICT_MIN_BUFFER"},
	{Key: "conflict.work_start", EnvVar: "VOICECAL_CONFLICT_WORK_START"},
	{Key: "conflict.work_end", EnvVar: "VOICECAL_CONFLICT_WORK_END"},
	{Key: "events.default_duration", EnvVar: "VOICECAL_EVENTS_DEFAULT_DURATION"},
	{Key: "execution.timeout", EnvVar: "VOICECAL_EXECUTION_TIMEOUT"},
	{Key: "execution.max_retries", EnvVar: "VOICECAL_EXECUTION_MAX_RETRIES"},
	{Key: "default_calendar", EnvVar: "VOICECAL_DEFAULT_CALENDAR"},
	{Key: "serve.addr", EnvVar: "VOICECAL_SERVE_ADDR"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-36s %v  %s\n", k.Key, val, source)
	}

	key := "(not set)"
	if newLLMClient() != nil {
		key = "(set)"
	}
	fmt.Fprintf(ui.Out, "  %-36s %s  %s\n", "anthropic.api_key", key, detectSource("anthropic.api_key", "VOICECAL_ANTHROPIC_API_KEY", fileValues))
	fmt.Fprintf(ui.Out, "  %-36s %d  %s\n", "calendars", listLen(viper.Get("calendars")), detectSource("calendars", "VOICECAL_CALENDARS", fileValues))
	fmt.Fprintf(ui.Out, "  %-36s %d  %s\n", "contacts", listLen(viper.Get("contacts")), detectSource("contacts", "VOICECAL_CONTACTS", fileValues))

	return nil
}

func listLen(v any) int {
	if list, ok := v.([]any); ok {
		return len(list)
	}
	return 0
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set: set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'voicecal config init' first)", cfgPath)
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
