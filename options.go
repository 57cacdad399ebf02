package dictgo

type options struct {
	caseSensitive bool
	logger        *Logger
}

// Option configures Dict construction.
type Option func(*options)

// WithCaseSensitive disables the default 7-bit ASCII case folding for
// key comparison and hashing. Use this if keys are not ASCII.
func WithCaseSensitive() Option {
	return func(o *options) {
		o.caseSensitive = true
	}
}

// WithLogger sets the logger used for operation logging. If l is nil,
// the default noop logger is kept.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
