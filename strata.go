package strata

// Version is the release version reported by the CLI. Overridable at
// build time:
//
//	go build -ldflags "-X github.com/ayushkumar29/strata.Version=1.2.3"
var Version = "0.3.0"
