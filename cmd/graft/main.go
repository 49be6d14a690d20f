package main

import (
	"context"
	"html/template"
	"log/slog"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/graftnet/graft/internal/config"
	"github.com/graftnet/graft/internal/infra/database"
	"github.com/graftnet/graft/internal/infra/repository"
	"github.com/graftnet/graft/internal/jsonld"
	"github.com/graftnet/graft/internal/present/rest"
	"github.com/graftnet/graft/internal/service"
	"github.com/graftnet/graft/internal/usecase"
)

const pageTemplates = `
{{define "post.head"}}<title>{{index .post "id"}}</title>{{end}}
{{define "post"}}<article><pre>{{printf "%v" .post}}</pre></article>
<section>{{range .replies}}<article><pre>{{printf "%v" .}}</pre></article>{{end}}</section>{{end}}
`

func main() {
	configPath := os.Getenv("GRAFT_CONFIG")
	if configPath == "" {
		configPath = "/etc/graft/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	if cfg.Server.EnableTrace {
		cleanup, err := setupTraceProvider(cfg)
		if err != nil {
			panic("failed to setup trace provider: " + err.Error())
		}
		defer cleanup()
	}

	db, err := database.NewPostgres(cfg.Server.PostgresDsn)
	if err != nil {
		panic("failed to connect database")
	}
	err = database.MigratePostgres(db)
	if err != nil {
		panic("failed to migrate database")
	}

	rdb := database.NewRedis(cfg.Server.RedisAddr, "", cfg.Server.RedisDB)
	mc := database.NewMemcached(cfg.Server.MemcachedAddr)

	codec := jsonld.NewManager(jsonld.NewGoldProcessor())

	objectRepo := repository.NewObjectRepository(db, mc)

	signalService := service.NewSignalService(rdb)
	renderService := service.NewRenderService(
		service.NewTemplateEngine(template.Must(template.New("pages").Parse(pageTemplates))),
		16,
	)
	defer renderService.Close()

	accountUsecase := usecase.NewAccountUsecase(objectRepo, codec)
	activityUsecase := usecase.NewActivityUsecase(objectRepo, codec, signalService)
	objectUsecase := usecase.NewObjectUsecase(objectRepo)

	handler := rest.NewHandler(
		cfg,
		accountUsecase,
		activityUsecase,
		objectUsecase,
		codec,
		signalService,
		renderService,
	)

	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	if cfg.Server.EnableTrace {
		e.Use(otelecho.Middleware(cfg.Node.FQDN))
	}

	handler.RegisterRoutes(e)

	slog.Info("starting server",
		slog.String("fqdn", cfg.Node.FQDN),
		slog.String("listen", cfg.Server.Listen),
	)
	e.Logger.Fatal(e.Start(cfg.Server.Listen))
}

func setupTraceProvider(cfg config.Config) (func(), error) {
	ctx := context.Background()

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Server.TraceEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, err := sdkresource.New(ctx,
		sdkresource.WithAttributes(
			semconv.ServiceName("graft"),
			semconv.ServiceInstanceID(cfg.Node.FQDN),
		),
	)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			slog.Error("failed to shutdown trace provider", slog.String("error", err.Error()))
		}
	}, nil
}
