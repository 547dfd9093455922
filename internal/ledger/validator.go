package ledger

import (
	"context"
	"log/slog"
	"path/filepath"

	"git.home.luguber.info/inful/pressroom/internal/digest"
	"git.home.luguber.info/inful/pressroom/internal/logfields"
)

// IdentityFunc returns the transform identity the current run would apply to
// input. ok is false when the input would no longer be compiled at all.
type IdentityFunc func(input string) (id string, ok bool)

// Reusable is the subset of a ledger that survived validation.
type Reusable struct {
	Inputs  map[string]struct{}
	Records map[string]Record
}

// Lookup returns the reusable record for input.
func (r Reusable) Lookup(input string) (Record, bool) {
	if _, ok := r.Inputs[input]; !ok {
		return Record{}, false
	}
	rec, ok := r.Records[input]
	return rec, ok
}

// Len reports the number of reusable records.
func (r Reusable) Len() int { return len(r.Inputs) }

// Validator filters a previous ledger down to the records still valid for
// the current run.
type Validator struct {
	identity IdentityFunc
	digests  *digest.Cache
	logger   *slog.Logger
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithDigestCache shares a run-scoped digest cache with the validator.
func WithDigestCache(c *digest.Cache) ValidatorOption {
	return func(v *Validator) { v.digests = c }
}

// WithLogger sets the logger rejections are reported to.
func WithLogger(l *slog.Logger) ValidatorOption {
	return func(v *Validator) { v.logger = l }
}

// NewValidator returns a validator recomputing identities with identity.
func NewValidator(identity IdentityFunc, opts ...ValidatorOption) *Validator {
	v := &Validator{identity: identity, logger: slog.Default()}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Filter applies the identity, output and input checks to every record.
// The only error it returns is the context's.
func (v *Validator) Filter(ctx context.Context, l Ledger, inputDir, outputDir string) (Reusable, error) {
	out := Reusable{Inputs: map[string]struct{}{}, Records: map[string]Record{}}
	for input, rec := range l.Index() {
		if err := ctx.Err(); err != nil {
			return Reusable{}, err
		}
		if reason := v.check(rec, inputDir, outputDir); reason != "" {
			v.logger.Debug("Ledger record rejected", logfields.Input(input), logfields.Reason(reason))
			continue
		}
		out.Inputs[input] = struct{}{}
		out.Records[input] = rec
	}
	return out, nil
}

func (v *Validator) check(rec Record, inputDir, outputDir string) string {
	id, ok := v.identity(rec.Input)
	if !ok {
		return "not compiled under current options"
	}
	if id != rec.Type {
		return "transform identity changed"
	}

	sum, err := digest.File(filepath.Join(outputDir, filepath.FromSlash(rec.Main())))
	if err != nil {
		return "output missing"
	}
	if sum != rec.OutputSHA {
		return "output modified"
	}

	for _, in := range rec.InputSHA {
		sum, err := v.digests.File(filepath.Join(inputDir, filepath.FromSlash(in.File)))
		if err != nil {
			return "input unreadable: " + in.File
		}
		if sum != in.SHA {
			return "input changed: " + in.File
		}
	}
	return ""
}
