package engine

// ReadOptions controls a single read.
type ReadOptions struct {
	ColumnFamily    string
	VerifyChecksums bool
}

// ReadOption mutates ReadOptions.
type ReadOption func(*ReadOptions)

// WithColumnFamily reads from the named column family instead of the default one.
func WithColumnFamily(name string) ReadOption {
	return func(o *ReadOptions) {
		o.ColumnFamily = name
	}
}

// WithChecksumVerification forces the backend to verify the record checksum
// before handing out the value.
func WithChecksumVerification() ReadOption {
	return func(o *ReadOptions) {
		o.VerifyChecksums = true
	}
}

// ApplyReadOptions folds opts over the defaults.
func ApplyReadOptions(opts ...ReadOption) ReadOptions {
	o := ReadOptions{ColumnFamily: DefaultColumnFamily}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WriteOptions controls a single write.
type WriteOptions struct {
	ColumnFamily string
	Sync         bool
}

// WriteOption mutates WriteOptions.
type WriteOption func(*WriteOptions)

// WithWriteColumnFamily writes to the named column family.
func WithWriteColumnFamily(name string) WriteOption {
	return func(o *WriteOptions) {
		o.ColumnFamily = name
	}
}

// WithSync makes the write durable before it returns.
func WithSync() WriteOption {
	return func(o *WriteOptions) {
		o.Sync = true
	}
}

// ApplyWriteOptions folds opts over the defaults.
func ApplyWriteOptions(opts ...WriteOption) WriteOptions {
	o := WriteOptions{ColumnFamily: DefaultColumnFamily}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
