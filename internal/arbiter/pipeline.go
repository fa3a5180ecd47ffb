package arbiter

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/arbiter/internal/model"
	"github.com/sells-group/arbiter/internal/tier"
	"github.com/sells-group/arbiter/internal/validate"
)

// SingleSourceMessage is stamped on tier-4 fields backed by a single source.
const SingleSourceMessage = "Single-source LLM value - not corroborated by another source"

// Pipeline accumulates one property's fields across many sources. It is not
// safe for concurrent use; feed it from one goroutine (see session.Actor).
type Pipeline struct {
	registry  *tier.Registry
	validator *validate.Validator
	minQuorum int
	now       func() time.Time
	log       *zap.Logger
	metrics   *Metrics

	fields             map[string]model.FieldValue
	audit              []model.AuditEntry
	conflicts          []model.FieldConflict
	conflictIdx        map[string]int
	validationFailures []model.ValidationFailure

	// finalized is set once the first Result has been counted in metrics.
	finalized bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMinQuorum sets the number of agreeing tier-4 sources needed to settle
// a disagreement. Values below 1 keep the default.
func WithMinQuorum(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.minQuorum = n
		}
	}
}

// WithNow sets the clock used for field and audit timestamps.
func WithNow(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithLogger sets the logger. Defaults to the global zap logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithMetrics records decisions on m.
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// NewPipeline creates an open arbitration session. Nil registry or validator
// fall back to the built-in tables.
func NewPipeline(reg *tier.Registry, v *validate.Validator, opts ...Option) *Pipeline {
	if reg == nil {
		reg = tier.Default()
	}
	if v == nil {
		v = validate.Default()
	}
	p := &Pipeline{
		registry:    reg,
		validator:   v,
		minQuorum:   DefaultMinQuorum,
		now:         func() time.Time { return time.Now().UTC() },
		log:         zap.L(),
		fields:      make(map[string]model.FieldValue),
		conflictIdx: make(map[string]int),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AddField validates and arbitrates one candidate value.
func (p *Pipeline) AddField(fieldKey string, value model.Value, source string) {
	t := p.registry.TierOf(source)
	now := p.now()

	if out := p.validator.Validate(fieldKey, value); !out.Valid {
		reason := out.Message
		if reason == "" {
			reason = ReasonValidationFailed
		}
		p.validationFailures = append(p.validationFailures, model.ValidationFailure{
			Field:  fieldKey,
			Value:  value,
			Reason: reason,
		})
		p.audit = append(p.audit, model.AuditEntry{
			Field:     fieldKey,
			Action:    model.ActionValidationFail,
			Source:    source,
			Tier:      t,
			Value:     value,
			Reason:    reason,
			Timestamp: now,
		})
		p.metrics.observeDecision(model.ActionValidationFail, t)
		p.log.Debug("arbiter: validation failed",
			zap.String("field", fieldKey),
			zap.String("source", source),
			zap.Int("tier", int(t)),
			zap.String("reason", reason),
		)
		return
	}

	var existing *model.FieldValue
	if cur, ok := p.fields[fieldKey]; ok {
		existing = &cur
	}

	d := Arbitrate(existing, Candidate{Field: fieldKey, Value: value, Source: source, Tier: t}, now)
	p.audit = append(p.audit, d.Audit)
	p.metrics.observeDecision(d.Action, t)

	if d.Field != nil {
		fv := *d.Field
		fv.ValidationStatus = model.ValidationPassed
		p.fields[fieldKey] = fv

		if d.Action == model.ActionConflict {
			p.recordConflict(fieldKey, fv, value, source, t)
		}
	}

	p.log.Debug("arbiter: decision",
		zap.String("field", fieldKey),
		zap.String("source", source),
		zap.Int("tier", int(t)),
		zap.String("action", string(d.Action)),
		zap.String("reason", d.Audit.Reason),
	)
}

// recordConflict upserts the session-level conflict list for fieldKey. The
// first conflict records the current winner alongside the new value.
func (p *Pipeline) recordConflict(fieldKey string, winner model.FieldValue, value model.Value, source string, t model.Tier) {
	entry := model.ConflictValue{Source: source, Value: value, Tier: t}
	if i, ok := p.conflictIdx[fieldKey]; ok {
		p.conflicts[i].Values = append(p.conflicts[i].Values, entry)
		return
	}
	p.conflictIdx[fieldKey] = len(p.conflicts)
	p.conflicts = append(p.conflicts, model.FieldConflict{
		Field: fieldKey,
		Values: []model.ConflictValue{
			{Source: winner.Source, Value: winner.Value, Tier: winner.Tier},
			entry,
		},
	})
}

// AddFieldsFromSource feeds every usable value a source reported. Values
// wrapped as {value: ...} are unwrapped; null, empty and placeholder values
// ("n/a", "unknown", "tbd", ...) are dropped. Keys are fed in sorted order.
// It returns the number of values forwarded to AddField.
func (p *Pipeline) AddFieldsFromSource(fields map[string]any, source string) int {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	added := 0
	for _, k := range keys {
		v := unwrap(model.FromAny(fields[k]))
		if IsPlaceholder(v) {
			continue
		}
		p.AddField(k, v, source)
		added++
	}
	return added
}

// FieldCount returns the number of fields with an accepted value.
func (p *Pipeline) FieldCount() int {
	return len(p.fields)
}

// Result finalizes a snapshot of the session: quorum voting over tier-4
// conflicts, then single-source detection. The session itself is not
// modified, so Result may be called repeatedly as more fields arrive. Only
// the first call is counted in the quorum and single-source metrics.
func (p *Pipeline) Result() *model.Result {
	fields := make(map[string]model.FieldValue, len(p.fields))
	for k, f := range p.fields {
		fields[k] = f.Clone()
	}

	quorum := ApplyQuorum(fields, p.minQuorum)
	warnings := DetectSingleSource(fields)
	for _, w := range warnings {
		f := fields[w.Field]
		f.ValidationStatus = model.ValidationWarning
		f.ValidationMessage = SingleSourceMessage
		fields[w.Field] = f
	}
	if !p.finalized {
		p.metrics.observeFinalize(len(quorum), len(warnings))
		p.finalized = true
	}

	p.log.Info("arbiter: session finalized",
		zap.Int("fields", len(fields)),
		zap.Int("audit_entries", len(p.audit)),
		zap.Int("conflicts", len(p.conflicts)),
		zap.Int("validation_failures", len(p.validationFailures)),
		zap.Int("quorum_fields", len(quorum)),
		zap.Int("single_source_warnings", len(warnings)),
	)

	return &model.Result{
		Fields:               fields,
		Conflicts:            cloneConflicts(p.conflicts),
		AuditTrail:           append([]model.AuditEntry{}, p.audit...),
		ValidationFailures:   append([]model.ValidationFailure{}, p.validationFailures...),
		LLMQuorumFields:      quorum,
		SingleSourceWarnings: warnings,
	}
}

func cloneConflicts(in []model.FieldConflict) []model.FieldConflict {
	out := make([]model.FieldConflict, len(in))
	for i, c := range in {
		out[i] = model.FieldConflict{
			Field:  c.Field,
			Values: append([]model.ConflictValue{}, c.Values...),
		}
	}
	return out
}
