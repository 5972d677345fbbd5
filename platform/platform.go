// Package platform describes the machine and runtime executing the tests.
package platform

import "runtime"

const (
	TagOSPlatform     = "os.platform"
	TagOSArchitecture = "os.architecture"
	TagRuntimeName    = "runtime.name"
	TagRuntimeVersion = "runtime.version"
)

// Tags returns the platform tags. They double as the "configurations" the
// backend uses to separate test histories.
func Tags() map[string]string {
	return map[string]string{
		TagOSPlatform:     runtime.GOOS,
		TagOSArchitecture: runtime.GOARCH,
		TagRuntimeName:    "go",
		TagRuntimeVersion: runtime.Version(),
	}
}
