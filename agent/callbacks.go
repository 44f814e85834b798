package agent

import "time"

// Update phases reported in Progress.Phase.
const (
	PhaseDiscovery = "discovery"
	PhaseIdentify  = "identify"
	PhaseLearn     = "learn"
	PhaseDownload  = "download"
	PhaseVerify    = "verify"
	PhaseApply     = "apply"
	PhaseActivate  = "activate"
	PhaseComplete  = "complete"
)

// Progress contains information about the update progress.
// Passed to ProgressCallback as the update advances.
type Progress struct {
	// Phase is one of the Phase constants
	Phase string

	// Component is the package index of the component being updated, or -1
	Component int

	// CurrentComponent counts the components started so far (1-based)
	CurrentComponent int

	// TotalComponents is the number of components selected for the update
	TotalComponents int

	// BytesSent is how much of the current image the FD has pulled
	BytesSent int

	// ImageSize is the size of the current image
	ImageSize int

	// Percentage is the completion percentage of the current phase (0.0 to 100.0)
	Percentage float64

	// ElapsedTime is the time elapsed since the update started
	ElapsedTime time.Duration
}

// ProgressCallback is called from the agent's event loop to report progress.
// Implementations should return quickly to avoid stalling the update.
//
// Example:
//
//	ua := agent.New(sock, pkg,
//	    agent.WithProgressCallback(func(p agent.Progress) {
//	        fmt.Printf("[%s] component %d/%d %.1f%%\n",
//	            p.Phase, p.CurrentComponent, p.TotalComponents, p.Percentage)
//	    }),
//	)
type ProgressCallback func(Progress)
