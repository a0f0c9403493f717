package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tidelineproject/tideline/internal/common"
	"github.com/tidelineproject/tideline/internal/common/health"
	"github.com/tidelineproject/tideline/internal/scaler"
	"github.com/tidelineproject/tideline/internal/scaler/configuration"
)

const CustomConfigLocation string = "config"

func init() {
	pflag.String(CustomConfigLocation, "", "Fully qualified path to application configuration file")
	pflag.Parse()
}

func main() {
	common.ConfigureLogging()
	common.BindCommandlineArguments()

	var config configuration.ScalerConfig
	userSpecifiedConfig := viper.GetString(CustomConfigLocation)
	common.LoadConfig(&config, "./config/scaler", userSpecifiedConfig)

	log.Info("Starting...")

	stopSignal := make(chan os.Signal, 1)
	signal.Notify(stopSignal, syscall.SIGINT, syscall.SIGTERM)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	startupComplete := health.NewStartupCompleteChecker()
	healthChecks := health.NewMultiChecker(startupComplete)
	health.SetupHttpMux(mux, healthChecks)

	shutdownHttpServer := common.ServeHttp(config.MetricsPort, mux)
	defer shutdownHttpServer()

	shutdown, wg := scaler.StartUp(&config, healthChecks)
	go func() {
		<-stopSignal
		shutdown()
	}()
	startupComplete.MarkComplete()
	wg.Wait()
}
