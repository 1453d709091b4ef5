package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/sebastian-mora/sshtoken/internal/logger"
)

func main() {
	logger.SetDebug(os.Getenv("DEBUG") == "true")

	// Initialize all dependencies
	handler, err := initialize(context.Background())
	if err != nil {
		logger.Error(context.Background(), "initialization failed", "error", err)
		os.Exit(1)
	}

	logger.Info(context.Background(), "Lambda handler initialized successfully")

	// Start Lambda runtime
	lambda.Start(handler.Handle)
}
