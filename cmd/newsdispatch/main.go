// Command newsdispatch はCMSの記事公開をMailchimpキャンペーンへ反映するサービス。
//
//	newsdispatch [serve|worker|migrate|ping|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/newsdispatch/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "newsdispatch: %v\n", err)
		os.Exit(1)
	}
}
