package utils

import (
	"github.com/blagojts/viper"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// SetupConfigFile binds fs to v and reads cfgFile, or ./config.yaml when
// cfgFile is empty. A missing default config file is not an error.
func SetupConfigFile(v *viper.Viper, cfgFile string, fs *pflag.FlagSet) error {
	if err := v.BindPFlags(fs); err != nil {
		return errors.Wrap(err, "could not bind flags to configuration")
	}
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
			return errors.Wrap(err, "fatal error config file")
		}
	}
	return nil
}
