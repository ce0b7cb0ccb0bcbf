// Command secrets shows one Secret exposed as an environment variable and one
// mounted as a file.
package main

import (
	"github.com/keithlinneman/k8sdemo/internal/cfg"
	"github.com/keithlinneman/k8sdemo/internal/echoapp"
)

func main() {
	echoapp.App{
		Component: "secrets",
		EnvLabel:  "DB_PASSWORD (env): ",
		FileLabel: "API_TOKEN (file): ",
		Defaults: cfg.Echo{
			EnvVar:      "DB_PASSWORD",
			EnvFallback: "Not set",
			File:        "/etc/secret/api-token.txt",
		},
		Banner: "Secrets app running on port %d",
	}.Main()
}
