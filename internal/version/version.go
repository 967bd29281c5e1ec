// ABOUTME: Version and product identity constants
// ABOUTME: Reported on startup and by wireless handshakes
package version

const (
	// Version is the current OpenLights core version.
	Version = "1.0.0"

	// Product is the product name.
	Product = "OpenLights Core"

	// Manufacturer identifies the project.
	Manufacturer = "Open Lights"
)
