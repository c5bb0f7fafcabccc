package main

import (
	"net/http"

	"ogsl-backend/lib/configutil"
	"ogsl-backend/lib/render"
	"ogsl-backend/lib/serviceutil"
	"ogsl-backend/lib/telemetry"
	"ogsl-backend/services/catalog/api"
	"ogsl-backend/services/catalog/store"
	"ogsl-backend/services/harvest"
)

type Config struct {
	Port     int `json:"port"`
	Database struct {
		Path string `json:"path"`
	} `json:"database"`
	Otlp telemetry.Config `json:"otlp"`
}

func main() {
	ctx := serviceutil.SignalContext()

	config, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		serviceutil.Fatal("failed to load configuration", err)
	}
	if config.Port == 0 {
		config.Port = 9350
	}
	if config.Database.Path == "" {
		config.Database.Path = "catalog.db"
	}

	if config.Otlp.Traces.GrpcEndpoint != "" || config.Otlp.Traces.HttpEndpoint != "" {
		tel, err := telemetry.Setup(ctx, "catalogd", config.Otlp)
		if err != nil {
			serviceutil.Fatal("failed to setup telemetry", err)
		}
		defer tel.Shutdown(ctx)
	}

	db, err := store.Open(config.Database.Path)
	if err != nil {
		serviceutil.Fatal("failed to open catalog database", err)
	}
	defer db.Close()

	st := store.New(db)
	hv := harvest.NewService(st, render.Chrome{})

	mux := http.NewServeMux()
	api.New(st, hv).Register(mux)
	go serviceutil.StartHttpServer(config.Port, mux)

	<-ctx.Done()
}
