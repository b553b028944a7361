package unxip

// ProgressCallback is called while the compressed payload is consumed.
// current: compressed bytes read so far
// total: declared length of the compressed payload
type ProgressCallback func(current int64, total int64)

// DefaultContentPath is the XAR entry that holds the pbzx stream.
const DefaultContentPath = "Content"

// DefaultBufferSize bounds the copy buffer between decoder and sink.
const DefaultBufferSize = 32 * 1024

// Options configures Open, Decode and Extract.
type Options struct {
	// ContentPath is the XAR entry to decode. Defaults to "Content".
	ContentPath string

	// BufferSize is the copy buffer size used when streaming the decoded
	// payload. Defaults to 32 KiB.
	BufferSize int

	// Verify checks the XAR TOC checksum and the archived checksum of the
	// content entry before decoding. This reads the entry twice.
	Verify bool

	// Progress, if set, is called after every read from the payload.
	Progress ProgressCallback

	// Sink receives the decoded stream in Extract. Defaults to a CpioSink.
	Sink Sink
}

func (o *Options) withDefaults() Options {
	var opts Options
	if o != nil {
		opts = *o
	}
	if opts.ContentPath == "" {
		opts.ContentPath = DefaultContentPath
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.Sink == nil {
		opts.Sink = &CpioSink{BufferSize: opts.BufferSize}
	}
	return opts
}
