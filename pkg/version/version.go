package version

// GitVersion is set at build time with
// -ldflags "-X edgeml/pkg/version.GitVersion=$(git describe --tags --always)"
var GitVersion = "v0.0.0-dev"
