package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Args are command line arguments.
type Args struct {
	Port       string
	Password   string
	ConfigFile string
}

func getArgs() *Args {
	configFile := flag.String(
		"conf",
		"",
		"Configuration file (optional).",
	)

	flag.Parse()

	// Positional arguments: <port> <password>
	if flag.NArg() != 2 {
		printUsage(fmt.Errorf("you must provide a port and a password"))
		return nil
	}

	port := flag.Arg(0)
	portNum, err := strconv.Atoi(port)
	if err != nil || portNum < 1 || portNum > 65535 {
		printUsage(fmt.Errorf("invalid port: %s", port))
		return nil
	}

	args := &Args{
		Port:     port,
		Password: flag.Arg(1),
	}

	if len(*configFile) > 0 {
		configPath, err := filepath.Abs(*configFile)
		if err != nil {
			printUsage(fmt.Errorf(
				"unable to determine path to the configuration file: %s", err))
			return nil
		}
		args.ConfigFile = configPath
	}

	return args
}

func printUsage(err error) {
	_, _ = fmt.Fprintf(os.Stderr, "%s\n", err)
	_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [options] <port> <password>\n",
		os.Args[0])
	flag.PrintDefaults()
}
