// ABOUTME: Build identification
// ABOUTME: Version strings set at link time and a Prometheus build info collector
package version

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/version"
)

// Set via -ldflags "-X github.com/screamrx/screamrx/internal/version.Version=..."
var (
	Version  = "dev"
	Branch   = ""
	Revision = ""
)

const (
	Product      = "screamrx"
	Manufacturer = "screamrx"
)

// Register publishes build info as screamrx_build_info
func Register(reg prometheus.Registerer) error {
	version.Version = Version
	version.Branch = Branch
	version.Revision = Revision
	return reg.Register(version.NewCollector(Product))
}

// Info returns a one-line build description
func Info() string {
	version.Version = Version
	version.Branch = Branch
	version.Revision = Revision
	return version.Info()
}
