package flowwatch

import _ "embed"

//go:embed VERSION
var version string

// Version will return the flowwatch release version
func Version() string {
	return version
}
