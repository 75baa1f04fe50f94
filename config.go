package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/horgh/config"
	"github.com/pkg/errors"
)

// Config holds the server's configuration.
type Config struct {
	ListenHost  string
	ListenPort  string
	ServerName  string
	ServerInfo  string
	Version     string
	CreatedDate string

	// Password clients must supply with PASS before registering.
	Password string

	// Path to the MOTD file. Read once at startup.
	MOTDFile string

	MaxNickLength int

	// Period of time to wait before waking the server up (maximum).
	WakeupTime time.Duration

	// Period of time a client can be idle before we send it a PING.
	PingTime time.Duration

	// Period of time a pinged client has to respond before we consider
	// it dead.
	DeadTime time.Duration

	// Oper name to password.
	Opers map[string]string

	// Address to serve Prometheus metrics on. Blank disables metrics.
	MetricsListen string
}

func defaultConfig() *Config {
	return &Config{
		ListenHost:    "0.0.0.0",
		ServerName:    "IRCat",
		ServerInfo:    "ircat IRC server",
		Version:       "ircat-1.0.0",
		CreatedDate:   time.Now().Format("Mon Jan 2 2006"),
		MOTDFile:      "conf/IRCat.motd",
		MaxNickLength: 9,
		WakeupTime:    time.Second,
		PingTime:      120 * time.Second,
		DeadTime:      60 * time.Second,
		Opers:         map[string]string{},
	}
}

// checkAndParseConfig loads the configuration file and overrides the
// defaults with the keys it finds. We parse some values into alternate
// representations.
func (s *Server) checkAndParseConfig(file string) error {
	configMap, err := config.ReadStringMap(file)
	if err != nil {
		return errors.Wrap(err, "unable to read config")
	}

	for key, v := range configMap {
		if len(v) == 0 {
			return fmt.Errorf("configuration value is blank: %s", key)
		}
	}

	if v, ok := configMap["listen-host"]; ok {
		s.Config.ListenHost = v
	}
	if v, ok := configMap["listen-port"]; ok {
		s.Config.ListenPort = v
	}
	if v, ok := configMap["server-name"]; ok {
		s.Config.ServerName = v
	}
	if v, ok := configMap["server-info"]; ok {
		s.Config.ServerInfo = v
	}
	if v, ok := configMap["version"]; ok {
		s.Config.Version = v
	}
	if v, ok := configMap["created-date"]; ok {
		s.Config.CreatedDate = v
	}
	if v, ok := configMap["password"]; ok {
		s.Config.Password = v
	}
	if v, ok := configMap["motd"]; ok {
		s.Config.MOTDFile = v
	}
	if v, ok := configMap["metrics-listen"]; ok {
		s.Config.MetricsListen = v
	}

	if v, ok := configMap["max-nick-length"]; ok {
		nickLen64, err := strconv.ParseInt(v, 10, 8)
		if err != nil {
			return errors.Wrap(err, "max nick length is not valid")
		}
		s.Config.MaxNickLength = int(nickLen64)
	}

	if v, ok := configMap["wakeup-time"]; ok {
		s.Config.WakeupTime, err = time.ParseDuration(v)
		if err != nil {
			return errors.Wrap(err, "wakeup time is in invalid format")
		}
	}

	if v, ok := configMap["ping-time"]; ok {
		s.Config.PingTime, err = time.ParseDuration(v)
		if err != nil {
			return errors.Wrap(err, "ping time is in invalid format")
		}
	}

	if v, ok := configMap["dead-time"]; ok {
		s.Config.DeadTime, err = time.ParseDuration(v)
		if err != nil {
			return errors.Wrap(err, "dead time is in invalid format")
		}
	}

	if v, ok := configMap["opers-config"]; ok {
		opers, err := config.ReadStringMap(v)
		if err != nil {
			return errors.Wrap(err, "unable to load opers config")
		}
		s.Config.Opers = opers
	}

	return nil
}

// loadMOTD reads the MOTD file into memory. A missing file is not an
// error; clients get ERR_NOMOTD instead.
func (s *Server) loadMOTD() {
	buf, err := os.ReadFile(s.Config.MOTDFile)
	if err != nil {
		return
	}

	lines := strings.Split(string(buf), "\n")
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for _, line := range lines {
		s.MOTD = append(s.MOTD, strings.TrimRight(line, "\r"))
	}
}
