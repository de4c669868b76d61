// Package version carries build metadata injected with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/bdobrica/sensei/common/version.Version=v0.3.0"
package version

var (
	Version   = "v0.0.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Info returns "<version> (<commit>) built at <time>".
func Info() string {
	return Version + " (" + GitCommit + ") built at " + BuildTime
}
