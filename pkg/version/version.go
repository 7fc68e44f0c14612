package version

// GitVersion is overridden at link time:
//
//	go build -ldflags "-X imucap/pkg/version.GitVersion=$(git describe --tags)"
var GitVersion = "v0.0.0-dev"
