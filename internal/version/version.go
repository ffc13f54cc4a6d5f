// ABOUTME: Version and product identification
// ABOUTME: Reported by the CLI and the sink status endpoint
package version

const (
	// Version is the release version of the synth binaries
	Version = "0.3.0"

	// Product names the software in listener and sink handshakes
	Product = "Resonate Synth"

	// Manufacturer identifies the vendor
	Manufacturer = "Resonate"
)

// String returns the product and version for --version output
func String() string {
	return Product + " " + Version
}
