package util

import (
	"crypto/rand"
	"fmt"
	"reflect"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const ENV_PREFIX = ""

const CONFIG_NAME = "casa_inteligente"

var Config = viper.New()

var config_listeners []func()

func RegisterNewConfigListener(new_listener func()) {
	for _, listener := range config_listeners {
		if reflect.ValueOf(new_listener).Pointer() == reflect.ValueOf(listener).Pointer() {
			Logger.Warn().Msg("config listener already registered")
			return
		}
	}
	config_listeners = append(config_listeners, new_listener)
}

func OnNewConfig() {
	for _, listener := range config_listeners {
		listener()
	}
}

func GetRandString(n int) string {
	// using crypto/rand for better security
	const letterBytes = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	b := make([]byte, n)
	for i := range b {
		randBytes := make([]byte, 1)
		if _, err := rand.Read(randBytes); err != nil {
			// fallback to a simple approach if crypto/rand fails
			b[i] = letterBytes[i%len(letterBytes)]
		} else {
			b[i] = letterBytes[int(randBytes[0])%len(letterBytes)]
		}
	}
	return string(b)
}

func setDefaults() {
	Config.SetDefault("Log_level", "info")
	Config.SetDefault("Log_format", "console")

	Config.SetDefault("Broker_URI", "tcp://broker.hivemq.com:1883")
	Config.SetDefault("Id_base", "casa_inteligente")
	Config.SetDefault("Username", "")
	Config.SetDefault("Password", "")
	Config.SetDefault("Cleansess", true)
	Config.SetDefault("Embedded_broker", false)
	Config.SetDefault("Embedded_broker_addr", ":1883")

	Config.SetDefault("Topic_base", "casa_oscar")
	Config.SetDefault("Peer_topic", "cmqtt_a")
	Config.SetDefault("Publish_queue", 64)
	Config.SetDefault("Publish_timeout_ms", 2000)
	Config.SetDefault("Breaker_failures", 5)
	Config.SetDefault("Breaker_open_ms", 10000)
	Config.SetDefault("Ha_discovery", false)

	Config.SetDefault("Strict_validation", false)
	Config.SetDefault("Shared_state", false)
	Config.SetDefault("Session_ttl_minutes", 1440)
	Config.SetDefault("Max_sessions", 1024)

	Config.SetDefault("Details_port", 8080)
	Config.SetDefault("Classifier_url", "")
	Config.SetDefault("Classifier_timeout_ms", 5000)
}

func SetupConfig() {
	Config.SetEnvPrefix(ENV_PREFIX)
	setDefaults()

	// config file
	Config.SetConfigName(CONFIG_NAME)
	Config.AddConfigPath("/")
	Config.AddConfigPath("./")
	Config.AddConfigPath("./config")
	Config.AddConfigPath("/etc")
	Config.AddConfigPath("/" + CONFIG_NAME)
	Config.AddConfigPath("/" + CONFIG_NAME + "/config")

	err := Config.ReadInConfig()
	if err != nil {
		Logger.Error().Msgf("unable to read config file: %v", fmt.Errorf("%v", err))
	}

	// environment variables
	Config.AutomaticEnv()

	// watch for changes
	Config.WatchConfig()
	Config.OnConfigChange(func(e fsnotify.Event) {
		Logger.Info().Msgf("Config file changed: %v", e.Name)
		Logger.Debug().Msgf("Config Additional Info: %v", e.String())
		OnNewConfig()
	})

}
