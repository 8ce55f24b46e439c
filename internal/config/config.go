package config

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Listen struct {
	BindIp string `yaml:"bind_ip" env-default:"0.0.0.0"`
	Port   string `yaml:"port" env-default:"8080"`
}

type DiscordConfig struct {
	Token           string   `yaml:"token" env:"DISCORD_BOT_TOKEN" env-default:""`
	Prefix          string   `yaml:"prefix" env-default:"!"`
	LogChannel      string   `yaml:"log_channel" env-default:""`
	PaymentChannel  string   `yaml:"payment_channel" env-default:""`
	TicketCategory  string   `yaml:"ticket_category" env-default:""`
	ArchiveCategory string   `yaml:"archive_category" env-default:""`
	StaffRoles      []string `yaml:"staff_roles"`
}

type StoreConfig struct {
	Dir string `yaml:"dir" env:"STORE_DIR" env-default:"data"`
}

type MongoConfig struct {
	Enabled  bool   `yaml:"enabled" env-default:"false"`
	Host     string `yaml:"host" env-default:"localhost"`
	Port     string `yaml:"port" env-default:"27017"`
	User     string `yaml:"user" env-default:""`
	Password string `yaml:"password" env-default:""`
	Database string `yaml:"database" env-default:"karybot"`
}

type TicketsConfig struct {
	Services     []string      `yaml:"services"`
	CloseDelay   time.Duration `yaml:"close_delay" env-default:"5s"`
	DeleteDelay  time.Duration `yaml:"delete_delay" env-default:"5s"`
	HistoryLimit int           `yaml:"history_limit" env-default:"100"`
}

type GiveawaysConfig struct {
	SweepSpec string `yaml:"sweep_spec" env-default:"@every 1m"`
}

// CatalogItem is one row of the price table. When the config carries no
// catalog the built-in defaults are used.
type CatalogItem struct {
	Points  int  `yaml:"points"`
	USD     int  `yaml:"usd"`
	MAD     int  `yaml:"mad"`
	InStock bool `yaml:"in_stock"`
}

type Config struct {
	Env       string          `yaml:"env" env:"APP_ENV" env-default:"local"`
	Discord   DiscordConfig   `yaml:"discord"`
	Store     StoreConfig     `yaml:"store"`
	Mongo     MongoConfig     `yaml:"mongo"`
	Listen    Listen          `yaml:"listen"`
	Tickets   TicketsConfig   `yaml:"tickets"`
	Giveaways GiveawaysConfig `yaml:"giveaways"`
	Catalog   []CatalogItem   `yaml:"catalog"`
}

var instance *Config
var once sync.Once

func MustLoad(path string) *Config {
	var err error
	once.Do(func() {
		instance = &Config{}
		if err = cleanenv.ReadConfig(path, instance); err != nil {
			desc, _ := cleanenv.GetDescription(instance, nil)
			err = fmt.Errorf("config: %s; %s", err, desc)
			instance = nil
			log.Fatal(err)
		}
	})
	return instance
}
