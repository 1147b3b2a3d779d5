package version

// These are overridden at build time with -ldflags "-X ...".
var (
	Version   = "v0.0.0"
	GitCommit = "unknown"
)
