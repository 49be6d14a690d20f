package config

import (
	"fmt"
	"os"

	"github.com/go-yaml/yaml"
)

type Config struct {
	Node   Node   `yaml:"node"`
	Server Server `yaml:"server"`
}

// Node describes how this server is reachable from the outside. Scheme and
// FQDN form the base of every object URL the server mints.
type Node struct {
	FQDN   string `yaml:"fqdn"`
	Scheme string `yaml:"scheme"` // http or https
}

type Server struct {
	Listen        string `yaml:"listen"`
	PostgresDsn   string `yaml:"postgresDsn"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisDB       int    `yaml:"redisDB"`
	MemcachedAddr string `yaml:"memcachedAddr"`
	EnableTrace   bool   `yaml:"enableTrace"`
	TraceEndpoint string `yaml:"traceEndpoint"`
}

func Load(path string) (Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	var config Config
	err = yaml.NewDecoder(file).Decode(&config)
	if err != nil {
		return Config{}, err
	}

	if config.Node.Scheme == "" {
		config.Node.Scheme = "https"
	}
	if config.Server.Listen == "" {
		config.Server.Listen = ":8000"
	}
	if config.Node.FQDN == "" {
		return Config{}, fmt.Errorf("node.fqdn is required")
	}

	return config, nil
}
