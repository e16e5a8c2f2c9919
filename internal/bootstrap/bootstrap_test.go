package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldstock/internal/app"
	"fieldstock/internal/config"
	"fieldstock/internal/core"
)

func TestNew_MemoryDefaults(t *testing.T) {
	var logs bytes.Buffer
	c, err := New(context.Background(), config.Default(), &logs)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	assert.Nil(t, c.Pool)
	require.NotNil(t, c.Registry)
	assert.Contains(t, logs.String(), "container ready")

	_, err = c.App.CreateLocation(context.Background(), app.CreateLocationRequest{Code: "CD-01", Name: "Central", Type: core.LocationCentral, ActorID: "admin"})
	require.NoError(t, err)

	families, err := c.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Storage = "postgres"
	_, err := New(context.Background(), cfg, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.url")
}

func TestNew_PublishesWorkflowEventsToNATS(t *testing.T) {
	ns, err := server.NewServer(&server.Options{Port: -1})
	require.NoError(t, err)
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(ns.Shutdown)

	sub, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	t.Cleanup(sub.Close)
	msgs, err := sub.SubscribeSync("fs.material_request.>")
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	cfg := config.Default()
	cfg.Metrics.Enabled = false
	cfg.NATS.URL = ns.ClientURL()
	cfg.NATS.SubjectPrefix = "fs"
	c, err := New(context.Background(), cfg, &bytes.Buffer{})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	assert.Nil(t, c.Registry)

	ctx := context.Background()
	_, err = c.App.CreateLocation(ctx, app.CreateLocationRequest{Code: "CD-01", Name: "Central", Type: core.LocationCentral, ActorID: "admin"})
	require.NoError(t, err)
	_, err = c.App.CreateProduct(ctx, app.CreateProductRequest{Code: "CIM-50", Name: "Cement", ActorID: "admin"})
	require.NoError(t, err)
	r, err := c.App.CreateMaterialRequest(ctx, app.CreateMaterialRequestRequest{
		ContractID:        "CT-1",
		SourceLocationRef: "CD-01",
		Items:             []app.RequestLine{{ProductRef: "CIM-50", Quantity: decimal.NewFromInt(2)}},
		RequesterID:       "eng.silva",
	})
	require.NoError(t, err)
	_, err = c.App.SubmitRequest(ctx, r.Code, "eng.silva")
	require.NoError(t, err)

	msg, err := msgs.NextMsg(2 * time.Second)
	require.NoError(t, err)
	var e core.Event
	require.NoError(t, json.Unmarshal(msg.Data, &e))
	assert.Equal(t, r.Code, e.Code)
	assert.Equal(t, "fs."+e.Type, msg.Subject)
}
