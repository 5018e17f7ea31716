// Synapse light adapter
//
// This is the main entry point of the Synapse service. It connects external
// Synapse apps to the host over MQTT, registers the lights each app reports,
// and serves them over a small authenticated HTTP API.
//
// Usage:
//
//	synapse                    run the service
//	synapse token [flags] SUB  print a signed API token for SUB
//
// The configuration file is read from SYNAPSE_CONFIG, or
// configs/config.yaml when unset.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/simmsb/synapse-extension/migrations"

	"github.com/simmsb/synapse-extension/internal/api"
	"github.com/simmsb/synapse-extension/internal/audit"
	"github.com/simmsb/synapse-extension/internal/auth"
	"github.com/simmsb/synapse-extension/internal/entity"
	"github.com/simmsb/synapse-extension/internal/infrastructure/config"
	"github.com/simmsb/synapse-extension/internal/infrastructure/database"
	"github.com/simmsb/synapse-extension/internal/infrastructure/influxdb"
	"github.com/simmsb/synapse-extension/internal/infrastructure/logging"
	"github.com/simmsb/synapse-extension/internal/infrastructure/mqtt"
	"github.com/simmsb/synapse-extension/internal/light"
	"github.com/simmsb/synapse-extension/internal/platform"
	"github.com/simmsb/synapse-extension/internal/synapse"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := runToken(os.Args[2:], os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting synapse",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	registry := entity.NewRegistry(entity.NewSQLiteRepository(db.DB))
	registry.SetLogger(log.With("component", "entity"))

	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.With("component", "mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	bus := platform.NewMQTTBus(mqttClient)
	bus.SetLogger(log.With("component", "bus"))
	defer bus.Close()

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	hub := api.NewHub(cfg.WebSocket, log.With("component", "websocket"))
	go hub.Run(ctx)

	actions := audit.NewSQLiteRepository(db.DB)
	registry.OnRegistered(registrationHook(ctx, hub, actions, log.With("component", "audit")))

	apps := make([]string, 0, len(cfg.Synapse.Entries))
	for _, entryCfg := range cfg.Synapse.Entries {
		apps = append(apps, entryCfg.AppName)
		stop, err := startEntry(ctx, entryDeps{
			cfg:      entryCfg,
			bus:      bus,
			mqtt:     mqttClient,
			registry: registry,
			changes:  lightChangeHandler(registry, influxClient, hub, entryCfg.AppName),
			log:      log.ForEntry(entryCfg.ID, entryCfg.AppName),
		})
		if err != nil {
			return fmt.Errorf("starting entry %s: %w", entryCfg.ID, err)
		}
		defer stop()
	}
	mqttClient.SetApps(apps)

	health := map[string]api.HealthChecker{
		"database": db,
		"mqtt":     mqttClient,
	}
	if influxClient != nil {
		health["influxdb"] = influxClient
	}

	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log.With("component", "api"),
		Entities: registry,
		Health:   health,
		MQTT:     mqttClient,
		DB:       db,
		Audit:    actions,
		Hub:      hub,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, health); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal",
		"entries", len(cfg.Synapse.Entries),
		"entities", registry.Count(),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: API, entries, InfluxDB, bus,
	// MQTT, database.

	log.Info("synapse stopped")
	return nil
}

// entryDeps holds what one configuration entry needs to start.
type entryDeps struct {
	cfg      config.EntryConfig
	bus      platform.Bus
	mqtt     synapse.Publisher
	registry *entity.Registry
	changes  func(*synapse.Descriptor)
	log      *logging.Logger
}

// startEntry builds the bridge and light platform of one entry and returns
// a function that stops both.
func startEntry(ctx context.Context, d entryDeps) (func(), error) {
	appData, err := synapse.LoadAppData(d.cfg.AppDataFile)
	if err != nil {
		return nil, err
	}

	bridge, err := synapse.New(synapse.Options{
		EntryID:          d.cfg.ID,
		AppName:          d.cfg.AppName,
		MetadataUniqueID: d.cfg.MetadataUniqueID,
		AppData:          appData,
		Bus:              d.bus,
		Publisher:        d.mqtt,
		Logger:           d.log,
	})
	if err != nil {
		return nil, fmt.Errorf("creating bridge: %w", err)
	}
	if d.changes != nil {
		bridge.OnChange(d.changes)
	}

	// Listen for configuration before the platform registers so a
	// configuration published during setup is not missed.
	if err := bridge.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting bridge: %w", err)
	}

	lights, err := light.SetupEntry(ctx, light.SetupOptions{
		Bridge:      bridge,
		Bus:         d.bus,
		AddEntities: d.registry.AddEntities(ctx, d.cfg.ID),
		Mode:        light.SetupMode(d.cfg.Setup),
		Dispatch:    light.DispatchMode(d.cfg.Dispatch),
		Logger:      d.log,
	})
	if err != nil {
		bridge.Stop()
		return nil, fmt.Errorf("setting up lights: %w", err)
	}

	return func() {
		d.log.Info("stopping entry")
		lights.Close()
		bridge.Stop()
	}, nil
}

// stateWriter records light observations.
type stateWriter interface {
	WriteLightState(influxdb.LightState)
}

// broadcaster pushes events to WebSocket clients.
type broadcaster interface {
	Broadcast(channel string, payload any)
}

// registrationHook announces each new entity to WebSocket clients and
// records it in the action log.
func registrationHook(ctx context.Context, b broadcaster, actions audit.Repository, log *logging.Logger) func(*entity.Entry) {
	return func(e *entity.Entry) {
		b.Broadcast(api.ChannelEntityRegistered, map[string]any{
			"entity_id": e.EntityID,
			"unique_id": e.UniqueID,
			"domain":    e.Domain,
			"entry_id":  e.EntryID,
			"name":      e.Name,
		})

		err := actions.Create(ctx, &audit.Entry{
			Action:   audit.ActionRegister,
			EntityID: e.EntityID,
			UniqueID: e.UniqueID,
			Subject:  e.EntryID,
			Source:   audit.SourceRegistry,
			Outcome:  audit.OutcomeAccepted,
		})
		if err != nil {
			log.Error("recording registration", "entity_id", e.EntityID, "error", err)
		}
	}
}

// lightChangeHandler returns the bridge change hook that feeds history and
// the WebSocket stream. Descriptors that are not registered lights are
// ignored. w may be nil when InfluxDB is disabled.
func lightChangeHandler(registry *entity.Registry, w *influxdb.Client, b broadcaster, appName string) func(*synapse.Descriptor) {
	var sw stateWriter
	if w != nil {
		sw = w
	}
	return func(d *synapse.Descriptor) {
		e, ok := registry.Lookup(light.Domain, d.UniqueID())
		if !ok {
			return
		}
		l := light.New(d, nil)
		if sw != nil {
			sw.WriteLightState(lightState(l, e.EntityID, appName))
		}
		b.Broadcast(api.ChannelLightStateChanged, map[string]any{
			"entity_id":  e.EntityID,
			"unique_id":  l.UniqueID(),
			"attributes": l.Attributes(),
		})
	}
}

// lightState converts a light's current readings into a history point.
func lightState(l *light.Light, entityID, appName string) influxdb.LightState {
	s := influxdb.LightState{
		EntityID: entityID,
		UniqueID: l.UniqueID(),
		AppName:  appName,
		On:       l.IsOn(),
	}
	if b, ok := l.Brightness(); ok {
		s.Brightness = &b
	}
	if k, ok := l.ColorTempKelvin(); ok {
		s.ColorTempKelvin = &k
	}
	if m, ok := l.ColorMode(); ok {
		s.ColorMode = string(m)
	}
	return s
}

// runToken prints a signed API token. The secret and default lifetime come
// from the configuration file.
func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	role := fs.String("role", string(auth.RoleOperator), "token role (viewer or operator)")
	ttl := fs.Duration("ttl", 0, "token lifetime (default: security.jwt.token_ttl)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: synapse token [-role viewer|operator] [-ttl 24h] <subject>")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	lifetime := *ttl
	if lifetime <= 0 {
		lifetime = time.Duration(cfg.Security.JWT.TokenTTL) * time.Minute
	}

	token, err := auth.GenerateToken(fs.Arg(0), auth.Role(*role), cfg.Security.JWT.Secret, lifetime)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

// getConfigPath returns the configuration file path.
// Uses SYNAPSE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SYNAPSE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies every infrastructure connection, stopping at the
// first failure.
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	for name, c := range checks {
		if err := c.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
