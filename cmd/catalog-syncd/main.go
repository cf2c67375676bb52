// Command catalog-syncd runs the storefront catalog reconciliation
// service.
package main

import (
	"os"

	"github.com/openmerch/catalog-sync/cmd/catalog-syncd/app"
)

func main() {
	if err := app.Execute(); err != nil {
		os.Exit(1)
	}
}
