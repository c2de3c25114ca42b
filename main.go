package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"

	"signalmirror/src/database"
	"signalmirror/src/handler"
	"signalmirror/src/security"
	"signalmirror/src/server"
)

var APP_NAME = os.Getenv("APP_NAME")

func SetupLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))

	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		level = logger.DebugLevel
	}

	logger.SetLevel(level)
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		logger.SetFormatter(&logger.JSONFormatter{})
		return
	}
	logger.SetFormatter(&logger.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	SetupLogger()
	defer handlePanic()

	verifier, err := security.NewTokenVerifier(security.GetConfig().OperatorTokenHash)
	if err != nil {
		logger.WithError(err).Fatal("Operator token is not configured")
	}

	// Initialize main (read/write) database
	if err := database.InitMainDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	// Initialize read-only database
	if err := database.InitReadOnlyDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	router := server.NewRouter(verifier, server.Routes{
		Executions: handler.DefaultSearchExecutionsHandler(),
		Positions:  handler.DefaultSearchPositionsHandler(),
		TradeLogs:    handler.DefaultTradeLogsHandler(),
		MirrorStatus: handler.DefaultMirrorStatusHandler(),
		Mirror:       handler.DefaultMirrorSignalHandler(),
	})

	server.StartServer(server.GetConfig(), router)
}

func handlePanic() {
	if r := recover(); r != nil {
		logger.WithError(fmt.Errorf("%+v", r)).Error(fmt.Sprintf("Application %s panic", APP_NAME))
		//nolint
		time.Sleep(time.Second * 5)
	}
}
