package publisher

import "fmt"

// Step names one stage of the publishing pipeline.
type Step string

const (
	StepSelect  Step = "select"
	StepSession Step = "session"
	StepSubmit  Step = "submit"
	StepResolve Step = "resolve"
	StepRecord  Step = "record"
)

// Surface names a UI element the publisher waits for.
type Surface string

const (
	SurfaceReply   Surface = "reply"
	SurfaceCompose Surface = "compose"
	SurfaceSubmit  Surface = "submit-control"
)

// StepError is a fatal pipeline failure. Surface is set when an expected
// UI element never became ready.
type StepError struct {
	Step    Step
	Surface Surface
	Err     error
}

func (e *StepError) Error() string {
	if e.Surface != "" {
		return fmt.Sprintf("%s: %s surface not ready: %v", e.Step, e.Surface, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
