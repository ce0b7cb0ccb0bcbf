// Command configmap echoes a greeting from the environment and a message from
// a mounted ConfigMap file, both read once at startup.
package main

import (
	"github.com/keithlinneman/k8sdemo/internal/cfg"
	"github.com/keithlinneman/k8sdemo/internal/echoapp"
)

func main() {
	echoapp.App{
		Component: "configmap",
		EnvLabel:  "ENV: ",
		FileLabel: "FILE: ",
		Defaults: cfg.Echo{
			EnvVar:      "APP_GREETING",
			EnvFallback: "Hello from ENV!",
			File:        "/etc/config/message.txt",
		},
	}.Main()
}
