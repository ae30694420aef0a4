package main

import (
	"github.com/TillBeemelmanns/PDFCompare/config"
	"github.com/TillBeemelmanns/PDFCompare/internal/pipeline"
	"github.com/TillBeemelmanns/PDFCompare/pkg/env"
	"github.com/TillBeemelmanns/PDFCompare/pkg/httpserver"
	"github.com/TillBeemelmanns/PDFCompare/pkg/logging"
)

func main() {
	env.LoadEnv()
	logging.InitLogger(env.GetEnvBool(env.DebugVar, false))
	config.LoadConfig(".")
	env.ApplyOverrides(config.Config)

	pipe, err := pipeline.New(pipeline.Options{CacheDir: config.Config.CacheDir})
	if err != nil {
		logging.Log.Fatal(err)
	}

	server := httpserver.New(pipe, config.Config.Params())
	if err := server.ListenAndServe(config.Config.Port); err != nil {
		logging.Log.Fatal(err)
	}
}
