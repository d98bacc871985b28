package metrics

// Recorder defines the metrics hooks for the template provider. The default
// implementation is a no-op to avoid forcing a backend choice at this stage.
type Recorder interface {
	ConnOpened()
	ConnClosed()
	HandshakeFailed()
	SetupRejected(reason string)
	TemplateSent(sendNewPrevHash bool)
	TemplateSkipped()
	TemplateDifficulty(difficulty float64)
	SolutionSubmitted(success bool)
	TxDataNotFound()
}

// NoopRecorder implements Recorder without emitting metrics.
type NoopRecorder struct{}

func (NoopRecorder) ConnOpened()                           {}
func (NoopRecorder) ConnClosed()                           {}
func (NoopRecorder) HandshakeFailed()                      {}
func (NoopRecorder) SetupRejected(reason string)           {}
func (NoopRecorder) TemplateSent(sendPrevHash bool)        {}
func (NoopRecorder) TemplateSkipped()                      {}
func (NoopRecorder) TemplateDifficulty(difficulty float64) {}
func (NoopRecorder) SolutionSubmitted(success bool)        {}
func (NoopRecorder) TxDataNotFound()                       {}

// Default is the process-wide metrics sink; replaced with a real
// implementation once the admin HTTP surface is wired up in main.
var Default Recorder = NoopRecorder{}
