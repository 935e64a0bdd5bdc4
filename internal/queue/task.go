package queue

// RunTask asks the worker to process one document revision. RunID is assigned
// at enqueue time so HTTP callers can correlate the eventual run artifact.
type RunTask struct {
	RunID        string
	DocumentPath string
	ForceCreate  bool
	Attempt      int
	TraceID      string
}
