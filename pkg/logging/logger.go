package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

var Log *logrus.Logger

func InitLogger(debug bool) {
	Log = logrus.New()
	Log.Out = os.Stdout

	if debug {
		Log.SetLevel(logrus.DebugLevel)
		Log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	} else {
		Log.SetLevel(logrus.InfoLevel)
		Log.SetFormatter(&logrus.JSONFormatter{})
	}
}

// Component returns an entry tagged with the component name. Falls back to
// a default logger when InitLogger was not called (library use).
func Component(name string) *logrus.Entry {
	if Log == nil {
		InitLogger(false)
	}
	return Log.WithField("component", name)
}
