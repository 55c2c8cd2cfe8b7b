package logging

import (
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
)

/*
Setup configures the process-wide logger from configuration: logging.level
selects the threshold, logging.json switches to structured output for log
shippers. Defaults keep the pretty console format at info level.
*/
func Setup() {
	log.SetTimeFormat(time.Kitchen)
	log.SetReportTimestamp(true)

	if level, err := log.ParseLevel(viper.GetString("logging.level")); err == nil {
		log.SetLevel(level)
	}

	if viper.GetBool("logging.json") {
		log.SetFormatter(log.JSONFormatter)
		log.SetOutput(os.Stderr)
	}
}
