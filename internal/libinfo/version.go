/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package libinfo reports the version of go-resolvekit the running binary is built with.
package libinfo

import (
	"debug/buildinfo"
	"regexp"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ShortName is a short name of the module used in user agents and metric labels.
const ShortName = "resolvekit"

const moduleName = "github.com/acronis/go-" + ShortName

// PrometheusVersionLabel is a name of the constant Prometheus label with the module version.
const PrometheusVersionLabel = ShortName + "_version"

const unknownVersion = "v0.0.0"

// AddPrometheusVersionLabel returns a copy of labels with the module version label added.
func AddPrometheusVersionLabel(labels prometheus.Labels) prometheus.Labels {
	labelsCopy := make(prometheus.Labels, len(labels)+1)
	for k, v := range labels {
		labelsCopy[k] = v
	}
	labelsCopy[PrometheusVersionLabel] = GetVersion()
	return labelsCopy
}

var (
	version     string
	versionOnce sync.Once
)

// GetVersion returns the module version or "v0.0.0" if it cannot be determined
// (e.g. in tests or in a binary built from a dirty work tree).
func GetVersion() string {
	versionOnce.Do(func() {
		if buildInfo, ok := debug.ReadBuildInfo(); ok {
			version = extractVersion(buildInfo, moduleName)
		}
		if version == "" {
			version = unknownVersion
		}
	})
	return version
}

// UserAgent returns the user agent go-resolvekit clients identify themselves with.
func UserAgent() string {
	return ShortName + "/" + GetVersion()
}

// extractVersion looks for the module among the main module and dependencies of the binary.
// The module path may have a major version suffix ("/vX").
func extractVersion(buildInfo *buildinfo.BuildInfo, modName string) string {
	if buildInfo == nil {
		return ""
	}
	re := regexp.MustCompile(`^` + regexp.QuoteMeta(modName) + `(/v[0-9]+)?$`)
	if re.MatchString(buildInfo.Main.Path) && buildInfo.Main.Version != "(devel)" {
		return buildInfo.Main.Version
	}
	for _, dep := range buildInfo.Deps {
		if re.MatchString(dep.Path) {
			return dep.Version
		}
	}
	return ""
}
