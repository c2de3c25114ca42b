package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"signalmirror/cmd/keys"
	"signalmirror/cmd/worker"
	"signalmirror/src/controller"
	"signalmirror/src/database"
	"signalmirror/src/database/migrations"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "signalmirror"
	app.Usage = "Mirror strategy signals onto follower accounts"
	app.Version = Version
	app.Before = func(_ *cli.Context) error {
		setupLogger()
		return nil
	}

	app.Commands = []cli.Command{
		workerCMD,
		sweepCMD,
		mirrorCMD,
		migrateCMD,
		encryptKeyCMD,
		hashTokenCMD,
		generateKeyCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	workerCMD = cli.Command{
		Name:        "worker",
		Usage:       "run the queue workers",
		Action:      workerAction,
		Description: `Run the mirror and execution workers, the stale task janitor and the pending signal sweeper`,
	}
	sweepCMD = cli.Command{
		Name:        "sweep",
		Usage:       "queue recent unclaimed signals once",
		Action:      sweepAction,
		Description: `Run one pass of the pending signal sweeper`,
	}
	mirrorCMD = cli.Command{
		Name:   "mirror",
		Usage:  "queue a mirror task for a signal",
		Action: mirrorAction,
		Flags: []cli.Flag{
			cli.UintFlag{Name: "signal", Usage: "signal id"},
		},
		Description: `Manual reprocessing. A signal whose mirror already completed is left alone by the worker`,
	}
	migrateCMD = cli.Command{
		Name:        "migrate",
		Usage:       "migrate the database schema",
		Action:      migrateAction,
		Flags: []cli.Flag{
			cli.BoolFlag{Name: "status", Usage: "list pending data migrations and exit"},
		},
		Description: `Run AutoMigrate and the pending data migrations`,
	}
	encryptKeyCMD = cli.Command{
		Name:        "encrypt-key",
		Usage:       "encrypt a venue credential",
		ArgsUsage:   "[credential]",
		Action:      encryptKeyAction,
		Description: `Encrypt a credential with EXCHANGE_CREDENTIALS_KEY. Reads stdin when no argument is given`,
	}
	hashTokenCMD = cli.Command{
		Name:        "hash-token",
		Usage:       "hash an operator token",
		ArgsUsage:   "[token]",
		Action:      hashTokenAction,
		Description: `Print the OPERATOR_TOKEN_HASH value for a bearer token. Reads stdin when no argument is given`,
	}
	generateKeyCMD = cli.Command{
		Name:   "generate-key",
		Usage:  "generate an EXCHANGE_CREDENTIALS_KEY",
		Action: generateKeyAction,
	}
)

func setupLogger() {
	level, err := logrus.ParseLevel(strings.ToLower(os.Getenv("LOG_LEVEL")))
	if err != nil {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)

	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

func workerAction(_ *cli.Context) error {
	logrus.Info("Starting worker CMD")

	w := &worker.Worker{Log: logrus.WithField("cmd", "worker")}
	if err := w.Start(); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func sweepAction(_ *cli.Context) error {
	log := logrus.WithField("cmd", "sweep")
	if err := database.InitMainDB(); err != nil {
		log.WithError(err).Error("Failed to connect to database")
		return err
	}

	queued, err := controller.NewSweeper(log, database.MainDB, controller.GetConfig()).Sweep(context.Background())
	if err != nil {
		return err
	}

	log.WithField("queued", queued).Info("Sweep finished")
	return nil
}

func mirrorAction(c *cli.Context) error {
	signalID := c.Uint("signal")
	if signalID == 0 {
		return errors.New("--signal is required")
	}

	log := logrus.WithFields(map[string]interface{}{"cmd": "mirror", "signal_id": signalID})
	if err := database.InitMainDB(); err != nil {
		log.WithError(err).Error("Failed to connect to database")
		return err
	}

	queued, err := controller.NewSweeper(log, database.MainDB, controller.GetConfig()).Enqueue(context.Background(), signalID)
	if err != nil {
		return err
	}

	if !queued {
		log.Info("A mirror task is already waiting for this signal")
		return nil
	}
	log.Info("Mirror task queued")
	return nil
}

func migrateAction(c *cli.Context) error {
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Error("Failed to connect to database")
		return err
	}
	if !c.Bool("status") {
		return database.Migrate(database.MainDB)
	}

	pending, err := migrations.Pending(database.MainDB)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Println("no pending data migrations")
		return nil
	}
	for _, id := range pending {
		fmt.Println(id)
	}
	return nil
}

func encryptKeyAction(c *cli.Context) error {
	plain, err := argOrStdin(c)
	if err != nil {
		return err
	}
	return keys.EncryptCredential(os.Stdout, plain)
}

func hashTokenAction(c *cli.Context) error {
	token, err := argOrStdin(c)
	if err != nil {
		return err
	}
	return keys.HashOperatorToken(os.Stdout, token)
}

func generateKeyAction(_ *cli.Context) error {
	return keys.GenerateKey(os.Stdout)
}

func argOrStdin(c *cli.Context) (string, error) {
	if arg := c.Args().First(); arg != "" {
		return arg, nil
	}

	reader := bufio.NewScanner(os.Stdin)
	reader.Buffer(make([]byte, 0, 1024), 1024*1024)
	if !reader.Scan() {
		if err := reader.Err(); err != nil {
			return "", err
		}
		return "", keys.ErrEmptyInput
	}
	return strings.TrimSpace(reader.Text()), nil
}
