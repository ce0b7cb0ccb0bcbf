// Command multienv reports which overlay it was deployed with. The file is
// re-read on every request so ConfigMap updates show up without a restart.
package main

import (
	"github.com/keithlinneman/k8sdemo/internal/cfg"
	"github.com/keithlinneman/k8sdemo/internal/echoapp"
)

func main() {
	echoapp.App{
		Component: "multienv",
		EnvLabel:  "ENV: ",
		FileLabel: "FILE: ",
		Defaults: cfg.Echo{
			EnvVar:         "APP_ENV",
			EnvFallback:    "unknown",
			File:           "/etc/config/message.txt",
			FilePerRequest: true,
		},
	}.Main()
}
