package version

// Version is set via ldflags at build time:
// go build -ldflags "-X github.com/teamcutter/addonforge/internal/version.Version=v0.1.0" ./cmd/addonforge
var Version = "dev"
