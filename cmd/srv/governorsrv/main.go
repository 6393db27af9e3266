package main

import (
	"fmt"
	"os"

	"github.com/core-tools/hsu-governor/pkg/gateway"
	"github.com/core-tools/hsu-governor/pkg/governor"
	"github.com/core-tools/hsu-governor/pkg/logging"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	ConfigFile  string `long:"config" description:"path to the governor configuration file" required:"true"`
	RunDuration int    `long:"run-duration" description:"run duration in seconds, 0 means run until signalled"`
	LogLevel    string `long:"log-level" description:"log level: debug, info, warn, error" default:"info"`
	LogFormat   string `long:"log-format" description:"log format: json, console" default:"console"`
	Validate    bool   `long:"validate" description:"validate the configuration file and exit"`
}

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s-server , ", module)
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	var err error
	_, err = parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v", err)
		os.Exit(1)
	}

	zapOptions := logging.DefaultZapOptions()
	zapOptions.Level = opts.LogLevel
	zapOptions.Format = opts.LogFormat

	zapLogger, syncLogs, err := logging.NewZapLogger(zapOptions)
	if err != nil {
		fmt.Printf("Failed to create logger: %v", err)
		os.Exit(1)
	}
	defer syncLogs()

	logger := logging.WithPrefix(zapLogger, logPrefix("hsu-governor"))

	logger.Infof("opts: %+v", opts)

	if opts.Validate {
		err = governor.ValidateConfigFile(opts.ConfigFile)
		if err != nil {
			logger.Errorf("Configuration validation failed: %v", err)
			os.Exit(1)
		}
		logger.Infof("Configuration is valid: %s", opts.ConfigFile)
		return
	}

	logger.Infof("Starting...")

	err = gateway.Run(opts.RunDuration, opts.ConfigFile, logger)
	if err != nil {
		logger.Errorf("Governor server failed: %v", err)
		os.Exit(1)
	}
}
