package toolflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/chative-toolflow/agent/contract"
	"github.com/tanpawarit/chative-toolflow/agent/dateparse"
	"github.com/tanpawarit/chative-toolflow/agent/sanitize"
	"github.com/tanpawarit/chative-toolflow/agent/state"
)

var errMissingField = errors.New("field is missing")

// field is one collected value and the step that owns it.
type field struct {
	key    string
	step   Step
	label  string
	prompt string
	// check returns the value kept in the flow record and the typed value
	// handed to the creator on submit.
	check func(raw any, now time.Time) (stored any, typed any, err error)
}

// definition describes one tool: its ordered fields and how to persist them.
type definition struct {
	tool     string
	entity   string
	fields   []field
	dateStep Step
	summary  func(typed map[string]any) string
	create   func(ctx context.Context, who contract.Identity, typed map[string]any, dedupKey string) (string, error)
	success  func(id string, typed map[string]any, res *Result)
}

// position is 0 for start, 1..n for the field steps, then confirm and submit.
func (d *definition) position(step Step) int {
	switch step {
	case StepStart:
		return 0
	case StepConfirm:
		return len(d.fields) + 1
	case StepSubmit:
		return len(d.fields) + 2
	}
	for i, f := range d.fields {
		if f.step == step {
			return i + 1
		}
	}
	return -1
}

func (d *definition) stepAt(pos int) Step {
	switch {
	case pos <= 0:
		return StepStart
	case pos <= len(d.fields):
		return d.fields[pos-1].step
	case pos == len(d.fields)+1:
		return StepConfirm
	default:
		return StepSubmit
	}
}

func (d *definition) fieldFor(step Step) field {
	for _, f := range d.fields {
		if f.step == step {
			return f
		}
	}
	return d.fields[len(d.fields)-1]
}

type engine struct {
	def      definition
	store    state.Store
	identity contract.IdentityProvider
	cfg      Config
	now      func() time.Time
	newID    func() string
	logger   zerolog.Logger
}

type Option func(*engine)

func WithClock(now func() time.Time) Option {
	return func(e *engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(e *engine) {
		e.logger = logger
	}
}

// WithSessionIDs overrides how session ids are minted for a start call
// without one.
func WithSessionIDs(fn func() string) Option {
	return func(e *engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

func newEngine(def definition, store state.Store, identity contract.IdentityProvider, cfg Config, opts ...Option) *engine {
	e := &engine{
		def:      def,
		store:    store,
		identity: identity,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		newID:    uuid.NewString,
		logger:   log.Logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// call is the per-request view: the stored record overlaid with whatever
// the caller sent for this turn.
type call struct {
	ctx       context.Context
	step      Step
	pos       int
	sessionID string
	rec       *state.FlowRecord
	input     map[string]any
	now       time.Time
	logger    zerolog.Logger
}

func (c *call) value(f field) (any, bool) {
	if v, ok := c.input[f.key]; ok && !isEmpty(v) {
		return v, true
	}
	if c.rec == nil {
		return nil, false
	}
	v, ok := c.rec.Fields[f.key]
	return v, ok && !isEmpty(v)
}

func (e *engine) execute(ctx context.Context, step Step, input map[string]any, sessionID string) Result {
	sessionID = strings.TrimSpace(sessionID)
	pos := e.def.position(step)
	if pos < 0 {
		return Result{
			Status:    StatusError,
			Message:   fmt.Sprintf("%q is not a step of the %s flow. Start again from %q.", step, e.def.entity, StepStart),
			NextStep:  StepStart,
			SessionID: sessionID,
			ErrorKind: contract.KindValidation,
		}
	}
	if step == StepStart {
		return e.start(ctx, sessionID)
	}
	if sessionID == "" {
		return Result{
			Status:    StatusError,
			Message:   fmt.Sprintf("This %s has no session yet. Start again from %q.", e.def.entity, StepStart),
			NextStep:  StepStart,
			ErrorKind: contract.KindValidation,
		}
	}

	c := &call{
		ctx:       ctx,
		step:      step,
		pos:       pos,
		sessionID: sessionID,
		input:     input,
		now:       e.now(),
		logger: e.logger.With().
			Str("session_id", sessionID).
			Str("tool", e.def.tool).
			Str("step", string(step)).
			Logger(),
	}
	rec, err := e.load(ctx, sessionID, step)
	if err != nil {
		return e.storeFailure(c, err)
	}
	c.rec = rec

	switch step {
	case StepConfirm:
		return e.confirm(c)
	case StepSubmit:
		return e.submit(c)
	default:
		return e.collect(c)
	}
}

// load returns the session's record, starting a fresh one when the session
// is unknown, belongs to another tool or already finished. A finished record
// is kept for submit so a repeated submit reuses its dedup key.
func (e *engine) load(ctx context.Context, sessionID string, step Step) (*state.FlowRecord, error) {
	rec, err := e.store.Get(ctx, sessionID)
	switch {
	case errors.Is(err, state.ErrFlowNotFound):
	case err != nil:
		return nil, err
	case rec.ToolName != e.def.tool:
	case rec.IsCompleted() && step != StepSubmit:
	default:
		return rec, nil
	}
	return e.store.Start(ctx, sessionID, e.def.tool)
}

func (e *engine) start(ctx context.Context, sessionID string) Result {
	if sessionID == "" {
		sessionID = e.newID()
	}
	c := &call{
		ctx:       ctx,
		step:      StepStart,
		sessionID: sessionID,
		logger:    e.logger.With().Str("session_id", sessionID).Str("tool", e.def.tool).Logger(),
	}
	if _, err := e.store.Start(ctx, sessionID, e.def.tool); err != nil {
		return e.storeFailure(c, err)
	}
	first := e.def.fields[0]
	if _, err := e.store.Update(ctx, sessionID, string(first.step), nil, state.StepInProgress); err != nil {
		return e.storeFailure(c, err)
	}
	c.logger.Debug().Msg("flow started")

	return Result{
		Status:    StatusInProgress,
		Message:   fmt.Sprintf("Let's create a new %s. %s", e.def.entity, first.prompt),
		NextStep:  first.step,
		SessionID: sessionID,
	}
}

// validate checks the first n fields in order and stops at the first one
// that is missing or invalid.
func (e *engine) validate(c *call, n int) (stored, typed map[string]any, bad *field, err error) {
	stored = make(map[string]any, n)
	typed = make(map[string]any, n)
	for i := 0; i < n && i < len(e.def.fields); i++ {
		f := e.def.fields[i]
		raw, ok := c.value(f)
		if !ok {
			return nil, nil, &f, fmt.Errorf("%w: %s", errMissingField, f.key)
		}
		s, t, err := f.check(raw, c.now)
		if err != nil {
			return nil, nil, &f, err
		}
		stored[f.key] = s
		typed[f.key] = t
	}
	return stored, typed, nil, nil
}

func (e *engine) collect(c *call) Result {
	stored, _, bad, err := e.validate(c, c.pos)
	if bad != nil {
		return e.reject(c, *bad, kindOf(err), e.describe(c, *bad, err), err)
	}

	next := e.def.stepAt(c.pos + 1)
	rec, err := e.store.Update(c.ctx, c.sessionID, string(next), stored, state.StepInProgress)
	if err != nil {
		return e.storeFailure(c, err)
	}

	msg := "I have everything I need. Let me review the details with you."
	if next != StepConfirm {
		msg = e.def.fieldFor(next).prompt
	}
	return Result{
		Status:    StatusInProgress,
		Message:   msg,
		NextStep:  next,
		SessionID: c.sessionID,
		Fields:    rec.Fields,
	}
}

// confirm re-validates everything collected so far before offering submit.
func (e *engine) confirm(c *call) Result {
	stored, typed, bad, err := e.validate(c, len(e.def.fields))
	if bad != nil {
		return e.reject(c, *bad, kindOf(err), e.describe(c, *bad, err), err)
	}

	rec, err := e.store.Update(c.ctx, c.sessionID, string(StepSubmit), stored, state.StepInProgress)
	if err != nil {
		return e.storeFailure(c, err)
	}
	return Result{
		Status:    StatusInProgress,
		Message:   fmt.Sprintf("Please confirm the %s:\n%s\nShall I save it?", e.def.entity, e.def.summary(typed)),
		NextStep:  StepSubmit,
		SessionID: c.sessionID,
		Fields:    rec.Fields,
	}
}

// submit resolves dates against the current time and makes the single
// create call. Failures other than a rejected date leave the record as it
// was so the submit can be repeated.
func (e *engine) submit(c *call) Result {
	stored, typed, bad, err := e.validate(c, len(e.def.fields))
	if bad != nil {
		return e.reject(c, *bad, kindOf(err), e.describe(c, *bad, err), err)
	}

	who, err := e.identity.Identity(c.ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("identity unavailable for submit")
		return e.authFailure(c)
	}

	ctx, cancel := context.WithTimeout(c.ctx, e.cfg.SubmitTimeout)
	defer cancel()

	dedupKey := c.sessionID + ":" + strconv.FormatInt(c.rec.CreatedAt.UnixMilli(), 10)
	id, err := e.def.create(ctx, who, typed, dedupKey)
	if err != nil {
		return e.submitFailure(c, stored, err)
	}

	if err := e.store.Complete(c.ctx, c.sessionID); err != nil {
		c.logger.Warn().Err(err).Str("entity_id", id).Msg("created entity but could not complete flow")
	}
	c.logger.Info().Str("entity_id", id).Msg("flow submitted")

	res := Result{
		Status:    StatusSuccess,
		SessionID: c.sessionID,
		Fields:    stored,
	}
	e.def.success(id, typed, &res)
	return res
}

func (e *engine) submitFailure(c *call, stored map[string]any, err error) Result {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		c.logger.Warn().Err(err).Dur("timeout", e.cfg.SubmitTimeout).Msg("submit timed out")
		return Result{
			Status:    StatusError,
			Message:   fmt.Sprintf("Saving the %s took too long. Nothing was changed, so it is safe to submit again.", e.def.entity),
			NextStep:  StepSubmit,
			SessionID: c.sessionID,
			Fields:    stored,
			ErrorKind: contract.KindTimeout,
		}
	}

	switch contract.ClassifyPersistence(err) {
	case contract.KindAuth:
		c.logger.Warn().Err(err).Msg("creator rejected identity")
		return e.authFailure(c)
	case contract.KindDate:
		f := e.def.fieldFor(e.def.dateStep)
		msg := fmt.Sprintf("The %s was not accepted. %s", f.label, f.prompt)
		return e.reject(c, f, contract.KindDate, msg, err)
	default:
		c.logger.Warn().Err(err).Msg("create failed")
		return Result{
			Status:    StatusError,
			Message:   fmt.Sprintf("Something went wrong while saving the %s. Let's start over.", e.def.entity),
			NextStep:  StepStart,
			SessionID: c.sessionID,
			ErrorKind: contract.KindPersistence,
		}
	}
}

func (e *engine) authFailure(c *call) Result {
	return Result{
		Status:    StatusError,
		Message:   fmt.Sprintf("You need to sign in again before I can save this %s. Once you are signed in, start over.", e.def.entity),
		NextStep:  StepStart,
		SessionID: c.sessionID,
		ErrorKind: contract.KindAuth,
	}
}

// reject counts a failed attempt against the step owning f and routes the
// caller back to it, or ends the flow at the retry ceiling.
func (e *engine) reject(c *call, f field, kind contract.ErrorKind, msg string, cause error) Result {
	rec, retry, err := e.store.MarkError(c.ctx, c.sessionID, string(f.step), cause)
	if err != nil {
		return e.storeFailure(c, err)
	}
	c.logger.Debug().
		Err(cause).
		Str("field", f.key).
		Str("error_kind", string(kind)).
		Int("retry_count", rec.RetryCount).
		Msg("flow step rejected")

	if !retry {
		if err := e.store.Cancel(c.ctx, c.sessionID); err != nil {
			c.logger.Warn().Err(err).Msg("cancel exhausted flow")
		}
		return Result{
			Status:    StatusError,
			Message:   fmt.Sprintf("%s\nThat was too many invalid attempts, so I discarded this %s. Start again from the beginning when you are ready.", msg, e.def.entity),
			NextStep:  StepStart,
			SessionID: c.sessionID,
			ErrorKind: contract.KindRetryExhausted,
		}
	}

	return Result{
		Status:    StatusError,
		Message:   msg,
		NextStep:  f.step,
		SessionID: c.sessionID,
		Fields:    rec.Fields,
		ErrorKind: kind,
	}
}

func (e *engine) storeFailure(c *call, err error) Result {
	c.logger.Warn().Err(err).Msg("flow store unavailable")
	return Result{
		Status:    StatusError,
		Message:   "I could not keep track of this conversation just now. Please try again.",
		NextStep:  c.step,
		SessionID: c.sessionID,
		ErrorKind: contract.KindPersistence,
	}
}

func (e *engine) describe(c *call, f field, err error) string {
	if errors.Is(err, errMissingField) {
		if f.step == c.step {
			return f.prompt
		}
		return fmt.Sprintf("I still need the %s's %s. %s", e.def.entity, f.label, f.prompt)
	}

	var fe *sanitize.FieldError
	if errors.As(err, &fe) {
		return fe.Message
	}
	var pe *dateparse.ParseError
	if errors.As(err, &pe) {
		return pe.Message
	}
	return err.Error()
}

func kindOf(err error) contract.ErrorKind {
	var pe *dateparse.ParseError
	if errors.As(err, &pe) {
		return contract.KindDate
	}
	return contract.KindValidation
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case *bool:
		return t == nil
	}
	return false
}

func asText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
