package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := newRootCmd().Execute(); err != nil {
		logrus.WithError(err).Error("hedgerd exited with error")
		os.Exit(1)
	}
}
