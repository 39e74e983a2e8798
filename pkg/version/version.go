package version

// Build information, overridden at link time:
//
//	go build -ldflags "-X ncsync/pkg/version.Version=... -X ncsync/pkg/version.GitCommit=... -X ncsync/pkg/version.BuildTime=..."
var (
	Version   = "1.0.0"
	GitCommit = "unknown"
	BuildTime = "unknown"
)
