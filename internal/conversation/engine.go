package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joescharf/voicecal/internal/calendar"
	"github.com/joescharf/voicecal/internal/intent"
	"github.com/joescharf/voicecal/internal/keylock"
	"github.com/joescharf/voicecal/internal/models"
	"github.com/joescharf/voicecal/internal/store"
)

// Defaults for Config.
const (
	DefaultTTL                     = 10 * time.Minute
	DefaultExtractionTimeout       = 20 * time.Second
	DefaultMinTranscriptConfidence = 0.5
)

// Store is the persistence the engine needs.
type Store interface {
	CreateConversation(ctx context.Context, c *models.VoiceConversation) error
	GetConversation(ctx context.Context, id string) (*models.VoiceConversation, error)
	UpdateConversation(ctx context.Context, c *models.VoiceConversation) error
	ListConversations(ctx context.Context, filter store.ConversationFilter) ([]*models.VoiceConversation, error)
	ListIdleConversations(ctx context.Context, now time.Time) ([]*models.VoiceConversation, error)
	PurgeConversations(ctx context.Context, before time.Time) (int64, error)
	GetActionByConversation(ctx context.Context, conversationID string) (*models.ExecutedAction, error)
}

// ConflictChecker classifies a time range against calendars.
type ConflictChecker interface {
	Check(ctx context.Context, r models.TimeRange, userID string, sources []calendar.Reader) (*models.ConflictReport, error)
}

// Executor commits a confirmed candidate.
type Executor interface {
	Execute(ctx context.Context, conv *models.VoiceConversation, c *models.ActionCandidate, calendarID string) (*models.ExecutedAction, error)
}

// Undoer reverses the last action of a user.
type Undoer interface {
	Undo(ctx context.Context, userID string) (*models.ExecutedAction, error)
}

// Sources lists the calendars consulted for conflicts.
type Sources interface {
	Selected() []calendar.Reader
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Store     Store
	Extractor intent.Extractor
	Checker   ConflictChecker
	Sources   Sources
	Executor  Executor
	Undo      Undoer
}

// Config tunes an Engine. Zero values fall back to the defaults.
type Config struct {
	TTL                     time.Duration
	Threshold               float64
	MinTranscriptConfidence float64
	ExtractionTimeout       time.Duration
	Location                *time.Location
	Now                     func() time.Time
	Logger                  *slog.Logger
}

// ResultKind tells the caller what a turn produced.
type ResultKind string

const (
	ResultNeedsClarification ResultKind = "needs_clarification"
	ResultConflictDetected   ResultKind = "conflict_detected"
	ResultReadyToConfirm     ResultKind = "ready_to_confirm"
	ResultExecuted           ResultKind = "executed"
	ResultFailed             ResultKind = "failed"
	ResultCancelled          ResultKind = "cancelled"
)

// TurnInput is one user utterance, optionally with a structured choice.
type TurnInput struct {
	ConversationID       string   `json:"conversation_id,omitempty"`
	UserID               string   `json:"user_id"`
	Transcript           string   `json:"transcript"`
	TranscriptConfidence *float64 `json:"transcript_confidence,omitempty"`
	// Option and Slot are 1-based picks from the last offered list.
	Option     *int   `json:"option,omitempty"`
	Slot       *int   `json:"slot,omitempty"`
	Override   bool   `json:"override,omitempty"`
	CalendarID string `json:"calendar_id,omitempty"`
	// CreateIfMissing starts a conversation under ConversationID when none exists.
	CreateIfMissing bool `json:"-"`
}

// TurnResult is the outcome of a turn.
type TurnResult struct {
	Kind           ResultKind               `json:"kind"`
	ConversationID string                   `json:"conversation_id,omitempty"`
	State          models.ConversationState `json:"state,omitempty"`
	Question       string                   `json:"question,omitempty"`
	Field          string                   `json:"field,omitempty"`
	Options        []string                 `json:"options,omitempty"`
	Preview        string                   `json:"preview,omitempty"`
	Warnings       []string                 `json:"warnings,omitempty"`
	Candidate      *models.ActionCandidate  `json:"candidate,omitempty"`
	Report         *models.ConflictReport   `json:"report,omitempty"`
	Action         *models.ExecutedAction   `json:"action,omitempty"`
	Reason         string                   `json:"reason,omitempty"`
	Retryable      bool                     `json:"retryable,omitempty"`

	// Err is the cause of a failed result.
	Err error `json:"-"`
}

// UndoResult describes a reversal.
type UndoResult struct {
	Reversal *models.ExecutedAction `json:"reversal"`
	Message  string                 `json:"message"`
}

// Engine runs conversations. Turns on one conversation are serialized;
// different conversations run independently.
type Engine struct {
	store     Store
	extractor intent.Extractor
	checker   ConflictChecker
	sources   Sources
	executor  Executor
	undo      Undoer
	locks     *keylock.Set
	cfg       Config
	log       *slog.Logger
}

// NewEngine wires an engine.
func NewEngine(d Deps, cfg Config) *Engine {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = intent.DefaultThreshold
	}
	if cfg.MinTranscriptConfidence <= 0 {
		cfg.MinTranscriptConfidence = DefaultMinTranscriptConfidence
	}
	if cfg.ExtractionTimeout <= 0 {
		cfg.ExtractionTimeout = DefaultExtractionTimeout
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		store:     d.Store,
		extractor: d.Extractor,
		checker:   d.Checker,
		sources:   d.Sources,
		executor:  d.Executor,
		undo:      d.Undo,
		locks:     keylock.New(),
		cfg:       cfg,
		log:       cfg.Logger,
	}
}

func (e *Engine) now() time.Time { return e.cfg.Now() }

func (e *Engine) temporal() intent.TemporalContext {
	return intent.TemporalContext{Now: e.now(), Location: e.cfg.Location}
}

// StartOrContinue applies one turn. Without a conversation id a new
// conversation is started; with CreateIfMissing an unknown id starts one under
// that id. Failed turns leave the stored conversation as it was.
func (e *Engine) StartOrContinue(ctx context.Context, in TurnInput) (*TurnResult, error) {
	if in.ConversationID == "" {
		return e.start(ctx, in)
	}

	release, ok := e.locks.TryLock(in.ConversationID)
	if !ok {
		return nil, ErrConversationBusy
	}
	defer release()

	stored, err := e.store.GetConversation(ctx, in.ConversationID)
	if errors.Is(err, store.ErrNotFound) && in.CreateIfMissing {
		return e.begin(ctx, in, in.ConversationID)
	}
	if err != nil {
		return nil, err
	}
	if in.UserID != "" && in.UserID != stored.UserID {
		return nil, fmt.Errorf("conversation %s: %w", in.ConversationID, store.ErrNotFound)
	}
	if err := e.checkOpen(ctx, stored); err != nil {
		return nil, err
	}

	work := stored.Clone()
	res, err := e.turn(ctx, work, in)
	if err != nil {
		return nil, err
	}
	if res.Kind == ResultFailed {
		return e.annotate(res, stored), nil
	}
	if err := e.save(ctx, work, false); err != nil {
		return nil, err
	}
	return e.annotate(res, work), nil
}

func (e *Engine) start(ctx context.Context, in TurnInput) (*TurnResult, error) {
	id := store.NewID()
	release, _ := e.locks.TryLock(id)
	defer release()
	return e.begin(ctx, in, id)
}

// begin runs the first turn of conversation id. The caller holds its lock.
func (e *Engine) begin(ctx context.Context, in TurnInput, id string) (*TurnResult, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return nil, errors.New("user id is required")
	}
	conv := &models.VoiceConversation{ID: id, UserID: in.UserID, State: models.StateIdle}

	res, err := e.turn(ctx, conv, in)
	if err != nil {
		return nil, err
	}
	if res.Kind == ResultFailed {
		return res, nil
	}
	if err := e.save(ctx, conv, true); err != nil {
		return nil, err
	}
	e.log.Info("conversation started", "conversation", conv.ID, "user", conv.UserID, "state", conv.State)
	return e.annotate(res, conv), nil
}

func (e *Engine) turn(ctx context.Context, conv *models.VoiceConversation, in TurnInput) (*TurnResult, error) {
	text := strings.TrimSpace(in.Transcript)
	if text != "" && in.TranscriptConfidence != nil && *in.TranscriptConfidence < e.cfg.MinTranscriptConfidence {
		return e.failed(conv, fmt.Errorf("transcript confidence %.2f: %w", *in.TranscriptConfidence, intent.ErrExtractionFailure)), nil
	}
	if in.CalendarID != "" && conv.Pending != nil {
		conv.Pending.CalendarID = in.CalendarID
	}

	switch conv.State {
	case models.StateIdle:
		return e.extract(ctx, conv, in, text)
	case models.StateClarifying:
		return e.clarify(ctx, conv, in, text)
	case models.StateConflictResolution:
		return e.resolve(ctx, conv, in, text)
	case models.StateAwaitingConfirmation:
		return e.awaitConfirmation(ctx, conv, in, text)
	}
	return nil, fmt.Errorf("%w: turn in state %s", ErrInvalidTransition, conv.State)
}

func (e *Engine) extract(ctx context.Context, conv *models.VoiceConversation, in TurnInput, text string) (*TurnResult, error) {
	if err := move(conv, TriggerTranscript); err != nil {
		return nil, err
	}
	if text == "" {
		return e.failed(conv, fmt.Errorf("empty transcript: %w", intent.ErrExtractionFailure)), nil
	}

	ectx, cancel := context.WithTimeout(ctx, e.cfg.ExtractionTimeout)
	defer cancel()
	res, err := e.extractor.Extract(ectx, text, e.temporal())
	if err != nil {
		return e.failed(conv, err), nil
	}
	return e.parsed(ctx, conv, res, in)
}

func (e *Engine) refine(ctx context.Context, pending *models.ActionCandidate, text string) (*intent.Result, error) {
	if text == "" {
		return nil, fmt.Errorf("empty answer: %w", intent.ErrExtractionFailure)
	}
	ectx, cancel := context.WithTimeout(ctx, e.cfg.ExtractionTimeout)
	defer cancel()
	return e.extractor.Refine(ectx, pending, text, e.temporal())
}

// parsed routes an extraction result. conv is in parsing.
func (e *Engine) parsed(ctx context.Context, conv *models.VoiceConversation, res *intent.Result, in TurnInput) (*TurnResult, error) {
	calendarID := in.CalendarID
	if calendarID == "" && conv.Pending != nil {
		calendarID = conv.Pending.CalendarID
	}

	if res.IsAmbiguous() {
		conv.Pending = nil
		conv.Options = res.Ambiguous
		for i := range conv.Options {
			if conv.Options[i].CalendarID == "" {
				conv.Options[i].CalendarID = calendarID
			}
		}
		if err := move(conv, TriggerNeedsClarification); err != nil {
			return nil, err
		}
		q, labels := optionQuestion(conv.Options)
		return e.ask(conv, q, FieldOption, labels), nil
	}

	conv.Options = nil
	conv.Pending = res.Candidate
	if conv.Pending.CalendarID == "" {
		conv.Pending.CalendarID = calendarID
	}
	return e.route(ctx, conv)
}

// route decides what a complete or incomplete candidate needs next. conv is in parsing.
func (e *Engine) route(ctx context.Context, conv *models.VoiceConversation) (*TurnResult, error) {
	c := conv.Pending
	if c.Blocked(e.cfg.Threshold) {
		if err := move(conv, TriggerNeedsClarification); err != nil {
			return nil, err
		}
		q, field := question(c)
		return e.ask(conv, q, field, nil), nil
	}
	if c.TimeBounded() {
		if err := move(conv, TriggerTimeBounded); err != nil {
			return nil, err
		}
		return e.check(ctx, conv)
	}
	if err := move(conv, TriggerNotTimeBounded); err != nil {
		return nil, err
	}
	conv.LastReport = nil
	conv.Override = nil
	return e.ready(conv), nil
}

// check runs the conflict detector. conv is in conflict_checking.
func (e *Engine) check(ctx context.Context, conv *models.VoiceConversation) (*TurnResult, error) {
	r, ok := conv.Pending.Range()
	if !ok {
		return nil, fmt.Errorf("%w: candidate has no time range", ErrInvalidTransition)
	}
	report, err := e.checker.Check(ctx, r, conv.UserID, e.sources.Selected())
	if err != nil {
		return e.failed(conv, err), nil
	}
	conv.LastReport = report
	conv.Override = nil

	if report.Severity.AtLeast(models.SeverityMedium) {
		if err := move(conv, TriggerConflict); err != nil {
			return nil, err
		}
		q, labels := conflictQuestion(report)
		return &TurnResult{
			Kind:      ResultConflictDetected,
			Question:  q,
			Options:   labels,
			Report:    report,
			Candidate: conv.Pending,
		}, nil
	}
	if err := move(conv, TriggerClear); err != nil {
		return nil, err
	}
	return e.ready(conv), nil
}

func (e *Engine) clarify(ctx context.Context, conv *models.VoiceConversation, in TurnInput, text string) (*TurnResult, error) {
	round := conv.OpenRound()
	if round != nil {
		answered := e.now().UTC()
		round.Answer = text
		if in.Option != nil {
			round.Answer = fmt.Sprintf("option %d", *in.Option)
		}
		round.AnsweredAt = &answered
	}

	if len(conv.Options) > 0 {
		idx, ok := e.pick(in.Option, text, len(conv.Options))
		if !ok {
			idx, ok = matchOption(text, conv.Options)
		}
		if !ok {
			if isNegative(text) {
				return e.cancelTurn(conv)
			}
			q, labels := optionQuestion(conv.Options)
			return e.ask(conv, "Sorry, I need a choice. "+q, FieldOption, labels), nil
		}
		conv.Pending = conv.Options[idx].Clone()
		conv.Options = nil
		if err := move(conv, TriggerAnswer); err != nil {
			return nil, err
		}
		return e.route(ctx, conv)
	}

	if conv.Pending == nil {
		return nil, fmt.Errorf("%w: clarifying without a pending action", ErrInvalidTransition)
	}
	switch {
	case isCancel(text):
		return e.cancelTurn(conv)
	case isAffirmative(text) && len(conv.Pending.MissingFields) == 0:
		conv.Pending.Confidence = 1
		if err := move(conv, TriggerAnswer); err != nil {
			return nil, err
		}
		return e.route(ctx, conv)
	case isNegative(text) && round != nil && round.Field == FieldConfirm:
		return e.ask(conv, "What should I change?", FieldRevision, nil), nil
	}

	res, err := e.refine(ctx, conv.Pending, text)
	if err != nil {
		return e.failed(conv, err), nil
	}
	if err := move(conv, TriggerAnswer); err != nil {
		return nil, err
	}
	return e.parsed(ctx, conv, res, in)
}

func (e *Engine) resolve(ctx context.Context, conv *models.VoiceConversation, in TurnInput, text string) (*TurnResult, error) {
	report := conv.LastReport
	if report == nil {
		return nil, fmt.Errorf("%w: conflict resolution without a report", ErrInvalidTransition)
	}

	if idx, ok := e.pick(in.Slot, text, len(report.SuggestedSlots)); ok {
		slot := report.SuggestedSlots[idx]
		conv.Pending = conv.Pending.WithSlot(slot.Start, slot.End)
		if err := move(conv, TriggerSlotChosen); err != nil {
			return nil, err
		}
		return e.check(ctx, conv)
	}

	if in.Override || isOverride(text) {
		ids := make([]string, 0, len(report.ConflictingEvents))
		for _, ev := range report.ConflictingEvents {
			ids = append(ids, ev.ID)
		}
		conv.Override = &models.ConflictOverride{
			Severity:         report.Severity,
			ConflictingIDs:   ids,
			UnreachableAtRun: report.Unreachable,
			At:               e.now().UTC(),
		}
		if err := move(conv, TriggerOverride); err != nil {
			return nil, err
		}
		e.log.Info("conflict overridden", "conversation", conv.ID, "severity", report.Severity)
		return e.ready(conv), nil
	}

	if isNegative(text) {
		return e.cancelTurn(conv)
	}
	res, err := e.refine(ctx, conv.Pending, text)
	if err != nil {
		return e.failed(conv, err), nil
	}
	if err := move(conv, TriggerRevise); err != nil {
		return nil, err
	}
	return e.parsed(ctx, conv, res, in)
}

func (e *Engine) awaitConfirmation(ctx context.Context, conv *models.VoiceConversation, in TurnInput, text string) (*TurnResult, error) {
	switch {
	case isAffirmative(text):
		return e.execute(ctx, conv)
	case isNegative(text):
		return e.cancelTurn(conv)
	case text == "":
		return e.ready(conv), nil
	}
	res, err := e.refine(ctx, conv.Pending, text)
	if err != nil {
		return e.failed(conv, err), nil
	}
	if err := move(conv, TriggerRevise); err != nil {
		return nil, err
	}
	return e.parsed(ctx, conv, res, in)
}

// execute performs the write. conv is in awaiting_confirmation.
func (e *Engine) execute(ctx context.Context, conv *models.VoiceConversation) (*TurnResult, error) {
	if _, err := Next(conv.State, TriggerConfirm); err != nil {
		return nil, err
	}
	action, err := e.executor.Execute(ctx, conv, conv.Pending, conv.Pending.CalendarID)
	if err != nil {
		return e.failed(conv, err), nil
	}
	if err := move(conv, TriggerConfirm); err != nil {
		return nil, err
	}
	conv.ExecutedActionID = action.ID
	return &TurnResult{Kind: ResultExecuted, Action: action, Preview: conv.Pending.Preview(), Candidate: conv.Pending}, nil
}

func (e *Engine) cancelTurn(conv *models.VoiceConversation) (*TurnResult, error) {
	if err := move(conv, TriggerCancel); err != nil {
		return nil, err
	}
	return &TurnResult{Kind: ResultCancelled}, nil
}

// pick resolves a 1-based structured choice or a spoken ordinal to a 0-based index.
func (e *Engine) pick(choice *int, text string, n int) (int, bool) {
	if n == 0 {
		return 0, false
	}
	if choice != nil {
		if *choice < 1 || *choice > n {
			return 0, false
		}
		return *choice - 1, true
	}
	return parseChoice(text, n)
}

func (e *Engine) ask(conv *models.VoiceConversation, q, field string, options []string) *TurnResult {
	conv.ClarificationHistory = append(conv.ClarificationHistory, models.ClarificationRound{
		Question: q,
		Field:    field,
		Options:  options,
		AskedAt:  e.now().UTC(),
	})
	return &TurnResult{
		Kind:      ResultNeedsClarification,
		Question:  q,
		Field:     field,
		Options:   options,
		Candidate: conv.Pending,
	}
}

func (e *Engine) ready(conv *models.VoiceConversation) *TurnResult {
	return &TurnResult{
		Kind:      ResultReadyToConfirm,
		Preview:   conv.Pending.Preview(),
		Warnings:  warnings(conv.LastReport, conv.Override),
		Report:    conv.LastReport,
		Candidate: conv.Pending,
	}
}

func (e *Engine) failed(conv *models.VoiceConversation, err error) *TurnResult {
	e.log.Warn("turn failed", "conversation", conv.ID, "state", conv.State, "error", err)
	return &TurnResult{
		Kind:      ResultFailed,
		Reason:    UserMessage(err),
		Retryable: retryable(err),
		Err:       err,
	}
}

func (e *Engine) annotate(res *TurnResult, conv *models.VoiceConversation) *TurnResult {
	res.ConversationID = conv.ID
	res.State = conv.State
	if res.Candidate == nil && res.Kind != ResultFailed && res.Kind != ResultCancelled {
		res.Candidate = conv.Pending
	}
	return res
}

// checkOpen rejects turns on finished conversations and expires stale ones.
func (e *Engine) checkOpen(ctx context.Context, conv *models.VoiceConversation) error {
	switch conv.State {
	case models.StateExecuted, models.StateCancelled:
		return ErrConversationClosed
	case models.StateExpired:
		return ErrConversationExpired
	}
	if !conv.ExpiresAt.IsZero() && !e.now().Before(conv.ExpiresAt) {
		expired := conv.Clone()
		if err := move(expired, TriggerExpire); err == nil {
			expired.UpdatedAt = e.now().UTC()
			if err := e.store.UpdateConversation(ctx, expired); err != nil {
				e.log.Error("expire conversation", "conversation", conv.ID, "error", err)
			}
		}
		return ErrConversationExpired
	}
	return nil
}

func (e *Engine) save(ctx context.Context, conv *models.VoiceConversation, isNew bool) error {
	now := e.now().UTC()
	conv.UpdatedAt = now
	if !conv.State.Terminal() {
		conv.ExpiresAt = now.Add(e.cfg.TTL)
	}
	if isNew {
		conv.CreatedAt = now
		if err := e.store.CreateConversation(ctx, conv); err != nil {
			return fmt.Errorf("save conversation: %w", err)
		}
		return nil
	}
	if err := e.store.UpdateConversation(ctx, conv); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}

// Confirm executes a conversation awaiting confirmation. Confirming an executed
// conversation returns its existing action.
func (e *Engine) Confirm(ctx context.Context, id string) (*TurnResult, error) {
	release, ok := e.locks.TryLock(id)
	if !ok {
		return nil, ErrConversationBusy
	}
	defer release()

	stored, err := e.store.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if stored.State == models.StateExecuted {
		action, err := e.store.GetActionByConversation(ctx, id)
		if err != nil {
			return nil, err
		}
		return e.annotate(&TurnResult{Kind: ResultExecuted, Action: action, Preview: action.Candidate.Preview()}, stored), nil
	}
	if err := e.checkOpen(ctx, stored); err != nil {
		return nil, err
	}

	work := stored.Clone()
	res, err := e.execute(ctx, work)
	if err != nil {
		return nil, err
	}
	if res.Kind == ResultFailed {
		return e.annotate(res, stored), nil
	}
	if err := e.save(ctx, work, false); err != nil {
		return nil, err
	}
	return e.annotate(res, work), nil
}

// Cancel abandons a conversation.
func (e *Engine) Cancel(ctx context.Context, id string) error {
	release, ok := e.locks.TryLock(id)
	if !ok {
		return ErrConversationBusy
	}
	defer release()

	stored, err := e.store.GetConversation(ctx, id)
	if err != nil {
		return err
	}
	if err := e.checkOpen(ctx, stored); err != nil {
		return err
	}
	work := stored.Clone()
	if err := move(work, TriggerCancel); err != nil {
		return err
	}
	if err := e.save(ctx, work, false); err != nil {
		return err
	}
	e.log.Info("conversation cancelled", "conversation", id)
	return nil
}

// UndoLast reverses the user's most recent action.
func (e *Engine) UndoLast(ctx context.Context, userID string) (*UndoResult, error) {
	rev, err := e.undo.Undo(ctx, userID)
	if err != nil {
		return nil, err
	}
	msg := "Undone: " + rev.Detail
	if rev.Partial {
		msg = "Nothing left to remove: " + rev.Detail
	}
	return &UndoResult{Reversal: rev, Message: msg}, nil
}

// Get returns a stored conversation.
func (e *Engine) Get(ctx context.Context, id string) (*models.VoiceConversation, error) {
	return e.store.GetConversation(ctx, id)
}

// List returns the user's conversations, newest first.
func (e *Engine) List(ctx context.Context, userID string, limit int) ([]*models.VoiceConversation, error) {
	return e.store.ListConversations(ctx, store.ConversationFilter{UserID: userID, Limit: limit})
}

// ExpireIdle marks open conversations past their TTL as expired. Conversations
// with a turn in flight are skipped.
func (e *Engine) ExpireIdle(ctx context.Context) (int, error) {
	idle, err := e.store.ListIdleConversations(ctx, e.now())
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range idle {
		release, ok := e.locks.TryLock(c.ID)
		if !ok {
			continue
		}
		if e.expireOne(ctx, c.ID) {
			n++
		}
		release()
	}
	if n > 0 {
		e.log.Info("expired idle conversations", "count", n)
	}
	return n, nil
}

func (e *Engine) expireOne(ctx context.Context, id string) bool {
	fresh, err := e.store.GetConversation(ctx, id)
	if err != nil || fresh.State.Terminal() || e.now().Before(fresh.ExpiresAt) {
		return false
	}
	if err := move(fresh, TriggerExpire); err != nil {
		return false
	}
	fresh.UpdatedAt = e.now().UTC()
	if err := e.store.UpdateConversation(ctx, fresh); err != nil {
		e.log.Error("expire conversation", "conversation", id, "error", err)
		return false
	}
	return true
}

// PurgeFinished deletes terminal conversations untouched for olderThan.
func (e *Engine) PurgeFinished(ctx context.Context, olderThan time.Duration) (int64, error) {
	return e.store.PurgeConversations(ctx, e.now().Add(-olderThan))
}
