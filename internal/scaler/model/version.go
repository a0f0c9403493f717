package model

import "strings"

// VersionsCompatible reports whether an agent on agentVersion may claim jobs
// when the system requires requiredVersion. Compatibility is MAJOR.MINOR
// equality; patch releases may differ. An empty requiredVersion disables the
// gate.
func VersionsCompatible(requiredVersion string, agentVersion string) bool {
	if requiredVersion == "" {
		return true
	}
	required := majorMinor(requiredVersion)
	agent := majorMinor(agentVersion)
	return required != "" && required == agent
}

func majorMinor(version string) string {
	version = strings.TrimPrefix(version, "v")
	parts := strings.Split(version, ".")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return ""
	}
	return parts[0] + "." + parts[1]
}
