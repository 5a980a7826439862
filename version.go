package main

import "fmt"

// set with -ldflags "-X main.gitSHA1=..."
var (
	gitSHA1   string = "unknown"
	gitDirty  string = "unknown"
	buildDate string = "unknown"
)

func Version() string {
	v := fmt.Sprintf("go-frame-reactor git:%s", gitSHA1)
	if gitDirty != "unknown" && gitDirty != "0" {
		v += "-dirty"
	}
	return v + " built:" + buildDate
}
