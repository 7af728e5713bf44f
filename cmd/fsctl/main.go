// Command fsctl registers users and checks logins against the fileshare
// database. Run "fsctl register", "fsctl login", or no command for a menu.
package main

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/dmitrijs2005/fileshare/internal/fsctl"
	"github.com/dmitrijs2005/fileshare/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()

	var args []string
	if len(os.Args) > 1 && !strings.HasPrefix(os.Args[1], "-") {
		args = os.Args[1:2]
	}

	app, err := fsctl.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	err = app.Run(ctx, args)
	_ = app.Close()
	if err != nil {
		log.Fatalf("%v", err)
	}

}
