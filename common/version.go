package common

import "time"

// Version is overridden at build time with -ldflags "-X github.com/qaforge/convotest/common.Version=...".
var Version = "v0.0.0"

// StartTime is the process start in unix seconds.
var StartTime = time.Now().Unix()
