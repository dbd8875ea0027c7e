package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/lucaspons9/TelBot/street"
	"gopkg.in/yaml.v3"
)

// Config is the service configuration. It can be read from a YAML file;
// flags given explicitly on the command line take precedence.
type Config struct {
	Region      street.Region `yaml:"region"`
	GTFS        string        `yaml:"gtfs"`
	Catalog     string        `yaml:"catalog"`
	Cache       string        `yaml:"cache"`
	MongoURI    string        `yaml:"mongo_uri"`
	Listen      string        `yaml:"listen"`
	LogLevel    string        `yaml:"log_level"`
	RateLimit   float64       `yaml:"rate_limit"`
	RateBurst   int           `yaml:"rate_burst"`
	CORSOrigins []string      `yaml:"cors_origins"`
}

// 命令行参数名 -> 配置项
func (c *Config) bindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Region.Name, "region", "barcelona", "region name, used as cache key prefix")
	fs.StringVar(&c.Region.File, "osm", "", "OSM extract of the region [.pbf, .osm]")
	fs.StringVar(&c.GTFS, "gtfs", "", "GTFS zip of the transit network")
	fs.StringVar(&c.Catalog, "catalog", "", "destination catalog csv, can be empty")
	fs.StringVar(&c.Cache, "cache", "", "graph cache [format: {dir} or {db}.{col} or redis://...] (empty means memory only)")
	fs.StringVar(&c.MongoURI, "mongo_uri", "", "mongo db uri, used when cache is {db}.{col}")
	fs.StringVar(&c.Listen, "listen", "localhost:52101", "HTTP listening address")
	fs.StringVar(&c.LogLevel, "log-level", "info", "log level [debug, info, warn, error, fatal, panic]")
	fs.Float64Var(&c.RateLimit, "rate", 50, "requests per second allowed (0 means unlimited)")
	fs.IntVar(&c.RateBurst, "burst", 100, "request burst size")
}

// LoadConfig parses args. When -config names a YAML file, its values
// replace the flag defaults and explicitly given flags are applied on top.
func LoadConfig(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{CORSOrigins: []string{"*"}}
	cfg.bindFlags(fs)
	configPath := fs.String("config", "", "YAML config file, can be empty")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *configPath != "" {
		explicit := make(map[string]string)
		fs.Visit(func(f *flag.Flag) { explicit[f.Name] = f.Value.String() })

		f, err := os.Open(*configPath)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", *configPath, err)
		}
		// 显式给出的命令行参数覆盖配置文件
		for name, value := range explicit {
			if err := fs.Set(name, value); err != nil {
				return nil, err
			}
		}
	}
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.Region.Name == "" {
		return fmt.Errorf("region name is empty")
	}
	if c.Region.File == "" {
		return fmt.Errorf("no OSM extract given for region %s", c.Region.Name)
	}
	if c.GTFS == "" {
		return fmt.Errorf("no GTFS archive given")
	}
	if _, ok := LOG_LEVELS[c.LogLevel]; !ok {
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}
	if c.RateLimit < 0 || c.RateBurst < 0 {
		return fmt.Errorf("invalid rate limit %v/%d", c.RateLimit, c.RateBurst)
	}
	return nil
}
