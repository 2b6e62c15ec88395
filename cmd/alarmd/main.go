package main

import (
	"k8s.io/klog/v2"

	"github.com/nvr-ai/go-alarm/cmd/alarmd/app"
)

func main() {
	if err := app.NewCommand().Execute(); err != nil {
		klog.ErrorS(err, "alarmd failed")
		klog.FlushAndExit(klog.ExitFlushTimeout, 1)
	}
	klog.Flush()
}
