package rules

import "log/slog"

// Option configures an Evaluator or an Engine.
type Option func(*options)

type options struct {
	random   RandomSource
	matcher  TextMatcher
	observer Observer
	logger   *slog.Logger
	codec    Codec
}

func collectOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.random == nil {
		o.random = GlobalRandom{}
	}
	if o.matcher == nil {
		o.matcher = NoMatcher{}
	}
	if o.observer == nil {
		o.observer = nopObserver{}
	}
	if o.codec == nil {
		o.codec = JSONCodec{}
	}
	return o
}

func (o *options) evaluator() *Evaluator {
	return &Evaluator{
		random:   o.random,
		matcher:  o.matcher,
		observer: o.observer,
		logger:   o.logger,
	}
}

// WithRandomSource sets the source of probability draws.
func WithRandomSource(r RandomSource) Option {
	return func(o *options) { o.random = r }
}

// WithTextMatcher sets the collaborator behind the Matches operator.
func WithTextMatcher(m TextMatcher) Option {
	return func(o *options) { o.matcher = m }
}

// WithObserver registers an Observer for fired rules and near misses.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithLogger sets the logger used for near-miss debug records.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithCodec sets the codec used by the Engine's encoded operations.
func WithCodec(c Codec) Option {
	return func(o *options) { o.codec = c }
}
