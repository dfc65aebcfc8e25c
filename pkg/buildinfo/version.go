// Package buildinfo provides build-time version information.
//
// Variables are set via ldflags during build:
//
//	go build -ldflags "-X github.com/matzehuels/domrand/pkg/buildinfo.Version=v1.0.0 \
//	    -X github.com/matzehuels/domrand/pkg/buildinfo.Commit=$(git rev-parse HEAD) \
//	    -X github.com/matzehuels/domrand/pkg/buildinfo.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// DatasetVersion is independent of the binary version: it names the run
// directory (random_dataset_V<n>) and only changes when the sample layout
// does.
package buildinfo

import "fmt"

var (
	// Version is the semantic version (e.g., "v1.2.3").
	// Set via ldflags: -X github.com/matzehuels/domrand/pkg/buildinfo.Version=...
	Version = "dev"

	// Commit is the git commit SHA.
	// Set via ldflags: -X github.com/matzehuels/domrand/pkg/buildinfo.Commit=...
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// DatasetVersion is the default run directory version.
const DatasetVersion = 0

// String returns the formatted build information.
func String() string {
	return fmt.Sprintf("version: %s\ncommit: %s\nbuilt: %s\ndataset: V%d", Version, Commit, Date, DatasetVersion)
}

// Template returns the version template string for cobra.
func Template() string {
	return fmt.Sprintf("{{.Name}} version %s\ncommit: %s\nbuilt: %s\n", Version, Commit, Date)
}

// UserAgent identifies the collector to the simulator bridge.
func UserAgent() string {
	return "domrand/" + Version
}

// RunDir returns the run directory name for dataset version v.
func RunDir(v int) string {
	return fmt.Sprintf("random_dataset_V%d", v)
}
