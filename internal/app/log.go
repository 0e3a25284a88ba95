package app

import "log"

var verboseMode bool

// SetVerbose toggles per-step pipeline logging.
func SetVerbose(verbose bool) {
	verboseMode = verbose
}

func verboseLog(format string, v ...interface{}) {
	if verboseMode {
		log.Printf(format, v...)
	}
}
