package pipeline

// Step names the states of the two bootstrap phases. Diagnostics and the
// phase report refer to steps by these names, so a failed deploy can be read
// off the log alone.
type Step string

const (
	StepResolveEnv     Step = "resolve-env"
	StepProvisionOS    Step = "provision-os"
	StepInstallDeps    Step = "install-deps"
	StepProvisionPaths Step = "provision-paths"
	StepPreflight      Step = "preflight"
	StepMigrate        Step = "migrate"
	StepLaunch         Step = "launch"
)

// Status values used across PhaseReport and StepResult.
const (
	StatusOK      = "ok"
	StatusWarn    = "warn" // step failed but the phase continues (migrations)
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// StepResult records the outcome of a single pipeline step.
type StepResult struct {
	Step   Step   `json:"step"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
	Error  string `json:"error,omitempty"`
}

// PhaseReport is the aggregate result of one phase run, printed as JSON at
// phase end so deploy logs are machine-scrapable.
type PhaseReport struct {
	Phase  string       `json:"phase"` // "build" or "start"
	Status string       `json:"status"`
	Steps  []StepResult `json:"steps"`
}

func (r *PhaseReport) record(res StepResult) {
	r.Steps = append(r.Steps, res)
}
