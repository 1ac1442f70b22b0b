// ABOUTME: Product and version constants
// ABOUTME: Reported in the HELO capabilities and the --version output
package version

const (
	// Version is the firmware version reported to the server
	Version = "0.3.0"

	// Product is the model name shown by the server
	Product = "SlimPlayer"

	// Model is the short model identifier sent as Model=
	Model = "slimplayer"

	Manufacturer = "Resonate Protocol"
)

// String returns the one-line version banner
func String() string {
	return Product + " " + Version
}
