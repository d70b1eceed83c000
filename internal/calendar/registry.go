package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Provider types accepted in configuration.
const (
	TypeLocal  = "local"
	TypeICS    = "ics"
	TypeGoogle = "google"
	TypeMemory = "memory"
)

// DefaultLocalID is the id of the built-in local calendar.
const DefaultLocalID = "local"

// ErrUnknownCalendar is returned when a calendar id is not configured.
var ErrUnknownCalendar = errors.New("unknown calendar")

// Config is one entry of the "calendars" configuration list.
type Config struct {
	ID         string `mapstructure:"id" yaml:"id"`
	Name       string `mapstructure:"name" yaml:"name"`
	Type       string `mapstructure:"type" yaml:"type"`
	URL        string `mapstructure:"url" yaml:"url,omitempty"`
	CalendarID string `mapstructure:"calendar_id" yaml:"calendar_id,omitempty"`
	Token      string `mapstructure:"token" yaml:"token,omitempty"`
	Selected   *bool  `mapstructure:"selected" yaml:"selected,omitempty"`
	Writable   *bool  `mapstructure:"writable" yaml:"writable,omitempty"`
}

// Options carries shared dependencies for building providers.
type Options struct {
	Store         EventStore
	HTTPClient    *http.Client
	Location      *time.Location
	ICSCacheTTL   time.Duration
	GoogleBaseURL string
	Default       string
}

type entry struct {
	info   Info
	reader Reader
	writer Writer
}

// Registry resolves configured calendars by id.
type Registry struct {
	order     []string
	entries   map[string]*entry
	defaultID string
}

// NewRegistry builds every configured calendar. With no configuration it
// registers a single local calendar.
func NewRegistry(ctx context.Context, cfgs []Config, opts Options) (*Registry, error) {
	r := &Registry{entries: make(map[string]*entry)}
	if len(cfgs) == 0 {
		cfgs = []Config{{ID: DefaultLocalID, Name: "Local", Type: TypeLocal}}
	}
	for _, cfg := range cfgs {
		if err := r.build(ctx, cfg, opts); err != nil {
			return nil, err
		}
	}

	r.defaultID = opts.Default
	if r.defaultID == "" {
		for _, id := range r.order {
			if r.entries[id].writer != nil {
				r.defaultID = id
				break
			}
		}
	}
	if r.defaultID != "" {
		e, ok := r.entries[r.defaultID]
		if !ok {
			return nil, fmt.Errorf("default calendar %q: %w", r.defaultID, ErrUnknownCalendar)
		}
		if e.writer == nil {
			return nil, fmt.Errorf("default calendar %q: %w", r.defaultID, ErrReadOnly)
		}
		e.info.Default = true
	}
	return r, nil
}

func (r *Registry) build(ctx context.Context, cfg Config, opts Options) error {
	if cfg.ID == "" {
		return fmt.Errorf("calendar entry without id")
	}
	if _, dup := r.entries[cfg.ID]; dup {
		return fmt.Errorf("duplicate calendar id %q", cfg.ID)
	}
	if cfg.Name == "" {
		cfg.Name = cfg.ID
	}

	var rw Reader
	switch cfg.Type {
	case TypeLocal, "":
		if opts.Store == nil {
			return fmt.Errorf("calendar %q: local calendar needs a store", cfg.ID)
		}
		cfg.Type = TypeLocal
		rw = NewLocalCalendar(cfg.ID, opts.Store)
	case TypeICS:
		if cfg.URL == "" {
			return fmt.Errorf("calendar %q: ics calendar needs a url", cfg.ID)
		}
		ttl := opts.ICSCacheTTL
		if ttl == 0 {
			ttl = DefaultICSCacheTTL
		}
		rw = NewICSFeed(cfg.ID, cfg.URL, opts.HTTPClient, opts.Location, ttl)
	case TypeGoogle:
		if cfg.Token == "" {
			return fmt.Errorf("calendar %q: google calendar needs a token", cfg.ID)
		}
		rw = NewGoogleCalendar(ctx, GoogleConfig{
			ID:          cfg.ID,
			CalendarID:  cfg.CalendarID,
			AccessToken: cfg.Token,
			BaseURL:     opts.GoogleBaseURL,
			Location:    opts.Location,
		})
	case TypeMemory:
		rw = NewMemoryCalendar(cfg.ID)
	default:
		return fmt.Errorf("calendar %q: unknown type %q", cfg.ID, cfg.Type)
	}

	w, canWrite := rw.(Writer)
	writable := canWrite
	if cfg.Writable != nil {
		writable = *cfg.Writable && canWrite
	}
	if !writable {
		w = nil
	}
	selected := true
	if cfg.Selected != nil {
		selected = *cfg.Selected
	}

	r.add(Info{ID: cfg.ID, Name: cfg.Name, Type: cfg.Type, Selected: selected, Writable: writable}, rw, w)
	return nil
}

// Static returns a registry over already built calendars. Each one is selected
// and writable when it implements Writer; the first writable one is the default.
func Static(readers ...Reader) *Registry {
	r := &Registry{entries: make(map[string]*entry)}
	for _, rd := range readers {
		_ = r.Register(Info{ID: rd.ID(), Name: rd.ID(), Type: TypeMemory, Selected: true, Writable: true}, rd)
	}
	return r
}

// Register adds an already built calendar. Used for in-memory setups.
func (r *Registry) Register(info Info, reader Reader) error {
	if _, dup := r.entries[info.ID]; dup {
		return fmt.Errorf("duplicate calendar id %q", info.ID)
	}
	var w Writer
	if rw, ok := reader.(Writer); ok && info.Writable {
		w = rw
	}
	info.Writable = w != nil
	r.add(info, reader, w)
	if r.defaultID == "" && w != nil {
		r.defaultID = info.ID
		r.entries[info.ID].info.Default = true
	}
	return nil
}

func (r *Registry) add(info Info, reader Reader, w Writer) {
	r.order = append(r.order, info.ID)
	r.entries[info.ID] = &entry{info: info, reader: reader, writer: w}
}

// Selected returns the readers consulted for conflict checks.
func (r *Registry) Selected() []Reader {
	var out []Reader
	for _, id := range r.order {
		if e := r.entries[id]; e.info.Selected {
			out = append(out, e.reader)
		}
	}
	return out
}

// Reader returns the reader for id.
func (r *Registry) Reader(id string) (Reader, error) {
	e, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("calendar %q: %w", id, ErrUnknownCalendar)
	}
	return e.reader, nil
}

// Writer returns the writer for id, or the default calendar when id is empty.
func (r *Registry) Writer(id string) (Writer, string, error) {
	if id == "" {
		id = r.defaultID
	}
	if id == "" {
		return nil, "", fmt.Errorf("no writable calendar configured: %w", ErrReadOnly)
	}
	e, ok := r.entries[id]
	if !ok {
		return nil, "", fmt.Errorf("calendar %q: %w", id, ErrUnknownCalendar)
	}
	if e.writer == nil {
		return nil, "", fmt.Errorf("calendar %q: %w", id, ErrReadOnly)
	}
	return e.writer, id, nil
}

// DefaultID returns the id of the default writable calendar.
func (r *Registry) DefaultID() string { return r.defaultID }

// List describes every configured calendar in configuration order.
func (r *Registry) List() []Info {
	out := make([]Info, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id].info)
	}
	return out
}
