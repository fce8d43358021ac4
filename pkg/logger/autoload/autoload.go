// Package autoload initialises logging from LOG_* variables when imported.
package autoload

import (
	"github.com/rs/zerolog/log"

	configx "github.com/tanpawarit/chative-toolflow/pkg/config"
	logx "github.com/tanpawarit/chative-toolflow/pkg/logger"
)

func init() {
	conf, err := configx.New[logx.Config]("LOG")
	if err != nil {
		logx.Init()
		log.Warn().Err(err).Msg("logger config invalid, using defaults")
		return
	}
	logx.Init(*conf)
}
