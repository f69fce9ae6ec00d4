package decoder

import "math/big"

const (
	DefaultConcurrency = 8
	DefaultMaxLength   = 100_000
)

type Options struct {
	// Concurrency bounds the number of elements fetched in parallel.
	Concurrency int
	// MaxLength rejects length words above it, 0 disables the check.
	MaxLength uint64
	// Block pins every read to this block. When nil and PinBlock is set the
	// decoder asks a BlockReader for the head once per pass.
	Block    *big.Int
	PinBlock bool
}

type Option func(*Options)

func defaultOptions() Options {
	return Options{
		Concurrency: DefaultConcurrency,
		MaxLength:   DefaultMaxLength,
		PinBlock:    true,
	}
}

func WithConcurrency(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.Concurrency = n
		}
	}
}

func WithMaxLength(n uint64) Option {
	return func(o *Options) { o.MaxLength = n }
}

func WithBlock(block *big.Int) Option {
	return func(o *Options) { o.Block = block }
}

// WithoutPinning reads every slot at "latest", as a plain script would.
func WithoutPinning() Option {
	return func(o *Options) { o.PinBlock = false }
}
