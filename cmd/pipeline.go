package cmd

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/joescharf/voicecal/internal/calendar"
	"github.com/joescharf/voicecal/internal/conflict"
	"github.com/joescharf/voicecal/internal/conversation"
	"github.com/joescharf/voicecal/internal/executor"
	"github.com/joescharf/voicecal/internal/intent"
	"github.com/joescharf/voicecal/internal/store"
	"github.com/joescharf/voicecal/internal/undo"
)

// pipeline holds the wired pipeline shared by the CLI, the API server and the
// MCP server.
type pipeline struct {
	store     store.Store
	calendars *calendar.Registry
	detector  *conflict.Detector
	engine    *conversation.Engine
	location  *time.Location
}

var pl *pipeline

// getPipeline builds the pipeline from config on first call.
func getPipeline(ctx context.Context) (*pipeline, error) {
	if pl != nil {
		return pl, nil
	}

	s, err := getStore()
	if err != nil {
		return nil, err
	}
	loc, err := configLocation()
	if err != nil {
		return nil, err
	}

	var cfgs []calendar.Config
	if err := viper.UnmarshalKey("calendars", &cfgs); err != nil {
		return nil, fmt.Errorf("read calendars config: %w", err)
	}
	cals, err := calendar.NewRegistry(ctx, cfgs, calendar.Options{
		Store:      s,
		HTTPClient: &http.Client{Timeout: viper.GetDuration("conflict.provider_timeout")},
		Location:   loc,
		Default:    viper.GetString("default_calendar"),
	})
	if err != nil {
		return nil, err
	}

	workStart, workEnd, err := workHours()
	if err != nil {
		return nil, err
	}
	detector := conflict.NewDetector(conflict.Options{
		ProviderTimeout:  viper.GetDuration("conflict.provider_timeout"),
		AggregateTimeout: viper.GetDuration("conflict.aggregate_timeout"),
		Horizon:          viper.GetDuration("conflict.horizon"),
		Step:             viper.GetDuration("conflict.step"),
		MaxSuggestions:   viper.GetInt("conflict.max_suggestions"),
		MinBuffer:        viper.GetDuration("conflict.min_buffer"),
		WorkStart:        workStart,
		WorkEnd:          workEnd,
		Logger:           logger.With("component", "conflict"),
	})

	extractor, err := newExtractor()
	if err != nil {
		return nil, err
	}
	timeout := viper.GetDuration("execution.timeout")
	exec := executor.New(s, cals, executor.Options{
		MaxRetries: viper.GetInt("execution.max_retries"),
		Timeout:    timeout,
		Logger:     logger.With("component", "executor"),
	})

	engine := conversation.NewEngine(conversation.Deps{
		Store:     s,
		Extractor: extractor,
		Checker:   detector,
		Sources:   cals,
		Executor:  exec,
		Undo:      undo.NewManager(s, cals, timeout, logger.With("component", "undo")),
	}, conversation.Config{
		TTL:                     viper.GetDuration("conversation.ttl"),
		Threshold:               viper.GetFloat64("conversation.confidence_threshold"),
		MinTranscriptConfidence: viper.GetFloat64("speech.min_confidence"),
		ExtractionTimeout:       viper.GetDuration("extraction.timeout"),
		Location:                loc,
		Logger:                  logger.With("component", "conversation"),
	})

	pl = &pipeline{store: s, calendars: cals, detector: detector, engine: engine, location: loc}
	return pl, nil
}

// closePipeline releases the store opened by getStore.
func closePipeline() {
	if dataStore != nil {
		_ = dataStore.Close()
		dataStore = nil
	}
	pl = nil
}

// policy is the extraction policy from config.
func policy() intent.Policy {
	return intent.Policy{
		Threshold:       viper.GetFloat64("conversation.confidence_threshold"),
		MaxOptions:      viper.GetInt("extraction.max_options"),
		DefaultDuration: viper.GetDuration("events.default_duration"),
	}
}

// contacts reads the contact directory from config.
func contacts() (*intent.Directory, error) {
	var list []intent.Contact
	if err := viper.UnmarshalKey("contacts", &list); err != nil {
		return nil, fmt.Errorf("read contacts config: %w", err)
	}
	return intent.NewDirectory(list), nil
}

// configLocation resolves the timezone key. "Local" and empty mean the system zone.
func configLocation() (*time.Location, error) {
	name := viper.GetString("timezone")
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", name, err)
	}
	return loc, nil
}

// parseClock turns "HH:MM" into an offset from midnight. Empty is zero.
func parseClock(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q, want HH:MM", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// workHours reads the optional working window for slot suggestions. Both
// bounds must be set together, and the end must follow the start.
func workHours() (start, end time.Duration, err error) {
	rawStart := strings.TrimSpace(viper.GetString("conflict.work_start"))
	rawEnd := strings.TrimSpace(viper.GetString("conflict.work_end"))
	if start, err = parseClock(rawStart); err != nil {
		return 0, 0, fmt.Errorf("conflict.work_start: %w", err)
	}
	if end, err = parseClock(rawEnd); err != nil {
		return 0, 0, fmt.Errorf("conflict.work_end: %w", err)
	}
	switch {
	case rawStart == "" && rawEnd == "":
		return 0, 0, nil
	case rawStart == "" || rawEnd == "":
		return 0, 0, fmt.Errorf("conflict.work_start and conflict.work_end must be set together")
	case end <= start:
		return 0, 0, fmt.Errorf("conflict.work_end %s must be after conflict.work_start %s", rawEnd, rawStart)
	}
	return start, end, nil
}

// currentUser is the speaker for CLI and MCP calls.
func currentUser() string {
	return viper.GetString("user")
}
