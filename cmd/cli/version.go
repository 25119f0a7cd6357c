package cli

import (
	"context"
	"runtime/debug"
)

const (
	developmentVersionConstant = "dev"
	develBuildVersionConstant  = "(devel)"
	versionOutputTemplate      = "%s version: %s\n"
)

// Version is the release version, set with -ldflags "-X github.com/temirov/flux-validator/cmd/cli.Version=v1.2.3".
var Version = developmentVersionConstant

var readBuildInfo = debug.ReadBuildInfo

func resolveVersion(context.Context) string {
	if Version != developmentVersionConstant {
		return Version
	}
	if buildInfo, available := readBuildInfo(); available && buildInfo != nil {
		if moduleVersion := buildInfo.Main.Version; len(moduleVersion) > 0 && moduleVersion != develBuildVersionConstant {
			return moduleVersion
		}
	}
	return developmentVersionConstant
}
