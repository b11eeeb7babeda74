package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/imrishuroy/go-shopflow/internal/app"
	"github.com/imrishuroy/go-shopflow/internal/aws"
	"github.com/imrishuroy/go-shopflow/internal/config"
	"github.com/imrishuroy/go-shopflow/internal/logging"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		logging.Base().Error("config_load_failed", "err", err)
		os.Exit(1)
	}
	log := logging.Init(cfg.App.Name+"-worker", cfg.App.LogFile, cfg.App.LogLevel)

	clients, err := aws.NewAWSClients(context.Background(), app.Settings(cfg))
	if err != nil {
		log.Error("aws_clients_init_failed", "err", err)
		os.Exit(1)
	}
	p := NewProcessor(app.New(cfg, clients).Orders, log)

	// Locally, run a single message from LOCAL_SQS_BODY.
	if cfg.App.RunLocal {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			log.Error("LOCAL_SQS_BODY is required when running locally")
			os.Exit(1)
		}
		resp, _ := p.Handle(context.Background(), events.SQSEvent{
			Records: []events.SQSMessage{{MessageId: "local-1", Body: body}},
		})
		if len(resp.BatchItemFailures) > 0 {
			os.Exit(1)
		}
		return
	}

	lambda.Start(p.Handle)
}
