package main

import (
	"os"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"

	"github.com/bitrise-steplib/bitrise-step-sharepoint-upload/uploader"
)

func main() {
	logger := log.NewLogger()
	envRepo := env.NewRepository()

	u := uploader.New(envRepo, logger, pathutil.NewPathChecker())
	if err := u.Run(); err != nil {
		logger.Println()
		logger.Errorf("Step failed: %s", err)
		os.Exit(1)
	}
}
