package job

// ErrorKind tags why a job reached a non-success terminal state, per the
// taxonomy in spec.md section 7. It is a descriptive tag, not a Go error
// type; components never throw these to callers.
type ErrorKind string

const (
	NoErrorKind        ErrorKind = ""
	BadFrameExpression ErrorKind = "BadFrameExpression"
	NoRenderLayers     ErrorKind = "NoRenderLayers"
	SceneStageError    ErrorKind = "SceneStageError"
	SpawnError         ErrorKind = "SpawnError"
	RendererFatal      ErrorKind = "RendererFatal"
	NonZeroExit        ErrorKind = "NonZeroExit"
	Timeout            ErrorKind = "Timeout"
	CancelledKind      ErrorKind = "Cancelled"
	InternalError      ErrorKind = "InternalError"
)
