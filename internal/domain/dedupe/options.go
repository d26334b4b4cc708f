package dedupe

type options struct {
	sizeHint int
}

// Option applies a configuration option to the in-memory deduper.
type Option func(*options)

// WithSizeHint preallocates room for n digests. It does not bound the index.
func WithSizeHint(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.sizeHint = n
		}
	}
}
