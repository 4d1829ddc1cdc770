// Package report defines what the pipeline tells a reporter about its
// progress; implementations live in the subpackages.
package report

// Reporter must be safe for concurrent use. Run blocks until Close.
type Reporter interface {
	Run() error
	Close() error

	// Chunk is called for every payload handed to a reader.
	Chunk(n int)
	// Message is called once per reassembled message, err is the handler
	// or size fault if any.
	Message(size int, err error)
}
