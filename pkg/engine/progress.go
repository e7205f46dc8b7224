package engine

// ProgressFunc receives progress events synchronously from the pipeline's
// own execution context. Implementations must not block: a slow callback
// directly stalls the deployment.
type ProgressFunc func(DeploymentProgress)

// ProgressStream adapts the synchronous callback to a bounded channel, so
// a caller can drain progress at its own pace without back-pressuring the
// pipeline. Events that arrive while the buffer is full are dropped;
// progress is observational and never authoritative, so losing an event
// loses nothing a caller can act on.
type ProgressStream struct {
	ch chan DeploymentProgress
}

// NewProgressStream creates a stream with the given buffer size.
func NewProgressStream(size int) *ProgressStream {
	if size <= 0 {
		size = 16
	}
	return &ProgressStream{ch: make(chan DeploymentProgress, size)}
}

// Callback returns the ProgressFunc to hand to Deploy.
func (s *ProgressStream) Callback() ProgressFunc {
	return func(p DeploymentProgress) {
		select {
		case s.ch <- p:
		default:
		}
	}
}

// Events is the channel the caller drains.
func (s *ProgressStream) Events() <-chan DeploymentProgress {
	return s.ch
}

// Close closes the event channel. Call only after Deploy has returned.
func (s *ProgressStream) Close() {
	close(s.ch)
}
