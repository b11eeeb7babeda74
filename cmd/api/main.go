package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-shopflow/internal/app"
	"github.com/imrishuroy/go-shopflow/internal/aws"
	"github.com/imrishuroy/go-shopflow/internal/config"
	"github.com/imrishuroy/go-shopflow/internal/handlers"
	"github.com/imrishuroy/go-shopflow/internal/identity"
	"github.com/imrishuroy/go-shopflow/internal/logging"
	"github.com/imrishuroy/go-shopflow/internal/validation"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		logging.Base().Error("config_load_failed", "err", err)
		os.Exit(1)
	}
	log := logging.Init(cfg.App.Name+"-api", cfg.App.LogFile, cfg.App.LogLevel)

	clients, err := aws.NewAWSClients(context.Background(), app.Settings(cfg))
	if err != nil {
		log.Error("aws_clients_init_failed", "err", err)
		os.Exit(1)
	}
	c := app.New(cfg, clients)

	if !cfg.App.RunLocal {
		gin.SetMode(gin.ReleaseMode)
	}
	r := handlers.NewRouter(handlers.Deps{
		Logger:      logging.New("http"),
		Verifier:    identity.NewVerifier(cfg.Security.JWTSecret, cfg.Security.Issuer, cfg.Security.Audience),
		Validator:   validation.New(),
		Carts:       c.Carts,
		Orders:      c.Orders,
		Finder:      c.Finder,
		Shops:       c.Catalog,
		Idempotency: c.Idempotency,
	})

	if cfg.App.RunLocal {
		log.Info("running local server", "addr", cfg.App.HTTPAddr)
		if err := r.Run(cfg.App.HTTPAddr); err != nil {
			log.Error("local_server_failed", "err", err)
			os.Exit(1)
		}
		return
	}

	adapter := ginadapter.New(r)
	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
