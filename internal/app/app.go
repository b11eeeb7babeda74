// Package app builds the stores and engines shared by the API and the worker.
package app

import (
	"github.com/imrishuroy/go-shopflow/internal/aws"
	"github.com/imrishuroy/go-shopflow/internal/cart"
	"github.com/imrishuroy/go-shopflow/internal/catalog"
	"github.com/imrishuroy/go-shopflow/internal/config"
	"github.com/imrishuroy/go-shopflow/internal/discovery"
	"github.com/imrishuroy/go-shopflow/internal/idempotency"
	"github.com/imrishuroy/go-shopflow/internal/orders"
)

type Components struct {
	Catalog     *catalog.Store
	Carts       *cart.Engine
	Orders      *orders.Service
	Finder      *discovery.Finder
	Idempotency *idempotency.Store
}

// New wires every component onto the given clients. The repair queue is only
// attached when a queue URL is configured; without it repairs are logged.
func New(cfg config.Config, clients *aws.AWSClients) *Components {
	t := cfg.Tables
	cat := catalog.NewStore(clients.DynamoDB, t.Products, t.Shops)
	carts := cart.NewEngine(cart.NewStore(clients.DynamoDB, t.Carts), cat)

	opts := []orders.Option{orders.WithMetrics(aws.NewMetrics(clients.CloudWatch))}
	if cfg.Queue.ReconcileURL != "" {
		opts = append(opts, orders.WithRepairQueue(aws.NewPublisher(clients.SQS, cfg.Queue.ReconcileURL)))
	}
	svc := orders.NewService(
		orders.NewStore(clients.DynamoDB, t.Orders),
		orders.NewAggregateStore(clients.DynamoDB, t.Aggregates),
		orders.NewCounter(clients.DynamoDB, t.Counters),
		cat, carts, opts...,
	)

	return &Components{
		Catalog:     cat,
		Carts:       carts,
		Orders:      svc,
		Finder:      discovery.NewFinder(cat, cfg.Discovery),
		Idempotency: idempotency.NewStore(clients.DynamoDB, t.Idempotency, cfg.Idempotency.TTL),
	}
}

// Settings maps the config onto the AWS client options.
func Settings(cfg config.Config) aws.Settings {
	return aws.Settings{Region: cfg.AWS.Region, EndpointOverride: cfg.AWS.EndpointOverride}
}
