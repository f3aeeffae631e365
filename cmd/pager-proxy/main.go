// Command pager-proxy serves paginated, cached time-series queries over HTTP.
//
// Every flag can also be set through the environment, e.g. --backend-url as
// PAGER_BACKEND_URL.
package main

import (
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
