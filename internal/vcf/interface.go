package vcf

// RecordReader is the interface shared by the record sources consumed by the
// annotate and genotype pipelines.
type RecordReader interface {
	// Read returns the next record, or io.EOF when exhausted.
	Read() (*Record, error)

	// Acquire returns an empty record from the reader's pool.
	Acquire() *Record

	// Release hands a record back to the reader's pool.
	Release(r *Record)

	// Header returns the input header.
	Header() *Header

	// Close releases resources; safe to call more than once.
	Close() error
}
