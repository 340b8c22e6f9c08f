// Command controlplane runs the incident-response control plane: the
// Source/Workflow/Sink controllers, the Workflow Engine, the Agent
// Runtime's tool registry, and the ingress HTTP server, wired together
// from a single process per spec §2's dependency chain (Store ->
// Template renderer -> Tool registry -> Agent runtime -> Step executor ->
// Workflow engine -> Controllers -> Ingress router).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"

	"github.com/incidentctl/controlplane/internal/config"
	"github.com/incidentctl/controlplane/pkg/agent"
	"github.com/incidentctl/controlplane/pkg/audit"
	"github.com/incidentctl/controlplane/pkg/controller"
	"github.com/incidentctl/controlplane/pkg/engine"
	"github.com/incidentctl/controlplane/pkg/executor"
	"github.com/incidentctl/controlplane/pkg/ingress"
	"github.com/incidentctl/controlplane/pkg/ingress/classifier"
	"github.com/incidentctl/controlplane/pkg/llm"
	"github.com/incidentctl/controlplane/pkg/metrics"
	"github.com/incidentctl/controlplane/pkg/model"
	"github.com/incidentctl/controlplane/pkg/registry"
	"github.com/incidentctl/controlplane/pkg/sink"
	"github.com/incidentctl/controlplane/pkg/store"
	"github.com/incidentctl/controlplane/pkg/tools"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the control plane's YAML config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "controlplane:", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "controlplane: invalid configuration:", err)
		os.Exit(1)
	}

	zapLog, err := newZapLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "controlplane: building logger:", err)
		os.Exit(1)
	}
	defer zapLog.Sync() //nolint:errcheck
	log := zapr.NewLogger(zapLog)
	logrusLog := newLogrusEntry(cfg.LogLevel)

	shutdownTracing, err := setupTracing(cfg.Tracing)
	if err != nil {
		log.Error(err, "failed to configure tracing; continuing without it")
	} else {
		defer shutdownTracing(context.Background())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, logrusLog); err != nil {
		log.Error(err, "controlplane exited with error")
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg = config.Default()
		} else {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupTracing registers a process-wide OpenTelemetry TracerProvider
// exporting via OTLP/HTTP when cfg.OTLPEndpoint is set, so the spans
// pkg/engine and pkg/agent already create (workflow.step.*,
// agent.iteration) land somewhere observable instead of the default no-op
// provider. Returns a shutdown func that flushes pending spans; it is a
// no-op when tracing isn't configured.
func setupTracing(cfg config.TracingConfig) (func(context.Context) error, error) {
	if cfg.OTLPEndpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracehttp.New(context.Background(), otlptracehttp.WithEndpoint(cfg.OTLPEndpoint))
	if err != nil {
		return nil, fmt.Errorf("building OTLP exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func newZapLogger(level string) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if l, err := zap.ParseAtomicLevel(level); err == nil {
		zcfg.Level = l
	}
	return zcfg.Build()
}

func newLogrusEntry(level string) *logrus.Entry {
	l := logrus.New()
	if lvl, err := logrus.ParseLevel(level); err == nil {
		l.SetLevel(lvl)
	}
	l.SetFormatter(&logrus.JSONFormatter{})
	return logrus.NewEntry(l)
}

// run wires every component described in spec §2 and drives the engine's
// run loop and ingress HTTP server until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, log logr.Logger, logrusLog *logrus.Entry) error {
	reg := registry.New()
	m := metrics.New()
	auditLog := audit.New()

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	provider, err := llm.NewProviderFromConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("building LLM provider: %w", err)
	}

	toolRegistry, err := buildToolRegistry(cfg, auditLog)
	if err != nil {
		return fmt.Errorf("building tool registry: %w", err)
	}

	agentRuntime := agent.New(provider, toolRegistry, auditLog)
	stepExecutor := executor.New(agentRuntime)
	stepExecutor.KubernetesMode = cfg.Execution.Mode == "kubernetes"
	stepExecutor.DefaultMaxIterations = cfg.Agent.MaxIterations
	stepExecutor.DefaultTimeout = time.Duration(cfg.Agent.TimeoutSeconds) * time.Second
	stepExecutor.MaxContextTokens = cfg.LLM.MaxTokens

	sinkDispatcher := sink.NewDispatcher(reg)
	registerSinkTransports(sinkDispatcher, cfg)

	wfEngine := engine.New(st, reg, stepExecutor, sinkDispatcher, m, cfg.Queue.Capacity, cfg.Queue.MaxConcurrentRuns)
	sinkDispatcher.RegisterTransport(model.SinkTypeWorkflow, sink.NewWorkflowTransport(wfEngine))

	rateLimiter, err := buildRateLimiter(cfg)
	if err != nil {
		return fmt.Errorf("building rate limiter: %w", err)
	}

	cls, err := classifier.New()
	if err != nil {
		return fmt.Errorf("building severity classifier: %w", err)
	}

	dispatcher := ingress.New(reg, st, wfEngine, rateLimiter, cls, m, logrusLog)
	router := ingress.NewRouter(dispatcher)

	httpServer := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	sources, workflows, sinks, err := startResourceWatches(cfg.Resources.Dir)
	if err != nil {
		return fmt.Errorf("starting resource watches: %w", err)
	}
	defer sources.Stop()
	defer workflows.Stop()
	defer sinks.Stop()

	sourceCtl := controller.NewSourceController(reg, log.WithName("source-controller"))
	workflowCtl := controller.NewWorkflowController(reg, log.WithName("workflow-controller"))
	sinkCtl := controller.NewSinkController(reg, sinkDispatcher, log.WithName("sink-controller"))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return sourceCtl.Run(gctx, sources.Events()) })
	g.Go(func() error { return workflowCtl.Run(gctx, workflows.Events()) })
	g.Go(func() error { return sinkCtl.Run(gctx, sinks.Events()) })
	g.Go(func() error { return wfEngine.Run(gctx) })

	g.Go(func() error {
		log.Info("ingress server listening", "addr", cfg.ServerAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Database.Type {
	case "postgres":
		return store.OpenPostgres(cfg.Database.DatabaseURL)
	default:
		return store.OpenSQLite(cfg.Database.SQLitePath)
	}
}

// buildToolRegistry assembles the Tool Registry's required tools (spec
// §4.7): kubectl gated by its namespace/verb rego policy, PromQL, the
// domain-allowlisted HTTP client, and the predefined script library.
func buildToolRegistry(cfg *config.Config, auditLog *audit.Log) (*tools.Registry, error) {
	reg := tools.New(auditLog)

	clientset, err := buildKubeClientset(cfg)
	if err != nil {
		return nil, err
	}
	kubectlPolicy, err := tools.NewKubectlPolicy(cfg.Tools.KubeNamespaceWhitelist, cfg.Tools.KubeElevatedRole)
	if err != nil {
		return nil, err
	}
	reg.Register(tools.NewKubectlTool(clientset), kubectlPolicy)

	if cfg.Tools.PromQLEndpoint != "" {
		reg.Register(tools.NewPromQLTool(cfg.Tools.PromQLEndpoint, 10*time.Second), nil)
	}

	reg.Register(tools.NewHTTPTool(10*time.Second, 1<<20), tools.NewHTTPDomainPolicy(cfg.Tools.HTTPAllowedDomains))
	reg.Register(tools.NewScriptTool(nil), nil)

	return reg, nil
}

// buildKubeClientset resolves a kubernetes.Interface the way an in-cluster
// controller would: an in-cluster service account config when running
// against a real cluster, the operator's kubeconfig for local development,
// and a fake clientset as a last resort so the control plane still starts
// without any cluster available (spec §4.7's kubectl tool never issues
// write verbs regardless, so a fake backing store can't cause damage).
func buildKubeClientset(cfg *config.Config) (kubernetes.Interface, error) {
	if cfg.Execution.Mode == "kubernetes" {
		restCfg, err := rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("in-cluster kube config: %w", err)
		}
		return kubernetes.NewForConfig(restCfg)
	}

	kubeconfig := os.Getenv("KUBECONFIG")
	if kubeconfig == "" {
		if home := homedir.HomeDir(); home != "" {
			kubeconfig = filepath.Join(home, ".kube", "config")
		}
	}
	if kubeconfig != "" {
		if restCfg, err := clientcmd.BuildConfigFromFlags("", kubeconfig); err == nil {
			return kubernetes.NewForConfig(restCfg)
		}
	}

	return fake.NewSimpleClientset(), nil
}

// registerSinkTransports wires every Sink Dispatcher transport except
// `workflow`, which needs the Engine and is registered by run() once the
// engine exists.
func registerSinkTransports(d *sink.Dispatcher, cfg *config.Config) {
	d.RegisterTransport(model.SinkTypeStdout, sink.NewStdoutTransport(os.Stdout))
	d.RegisterTransport(model.SinkTypeAlertmanager, sink.NewHTTPTransport("application/json"))
	d.RegisterTransport(model.SinkTypePrometheus, sink.NewHTTPTransport("application/json"))
	d.RegisterTransport(model.SinkTypeSlack, sink.NewSlackTransport())
	d.RegisterTransport(model.SinkTypePagerDuty, sink.NewPagerDutyTransport())
	d.RegisterTransport(model.SinkTypeJira, sink.NewJiraTransport(resolveSecretFromEnv))
	_ = cfg
}

// resolveSecretFromEnv is the local/dev SecretResolver: a Sink's
// credentialsRef names an environment variable holding the secret value.
func resolveSecretFromEnv(ref string) (string, error) {
	v := os.Getenv(ref)
	if v == "" {
		return "", fmt.Errorf("secret reference %q is not set in the environment", ref)
	}
	return v, nil
}

func buildRateLimiter(cfg *config.Config) (*ingress.RateLimiter, error) {
	if cfg.Redis.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	return ingress.NewRateLimiter(client), nil
}

// startResourceWatches builds the three file-backed EventSources that
// drive the controllers in EXECUTION_MODE=local, one subdirectory per
// kind.
func startResourceWatches(dir string) (
	*controller.FileEventSource[*model.Source],
	*controller.FileEventSource[*model.Workflow],
	*controller.FileEventSource[*model.Sink],
	error,
) {
	for _, sub := range []string{"sources", "workflows", "sinks"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, nil, nil, fmt.Errorf("creating %s: %w", sub, err)
		}
	}

	sources := controller.NewFileEventSource(
		filepath.Join(dir, "sources"),
		func() *model.Source { return &model.Source{} },
		func(s *model.Source) model.RegistryKey { return s.Key() },
	)
	workflows := controller.NewFileEventSource(
		filepath.Join(dir, "workflows"),
		func() *model.Workflow { return &model.Workflow{} },
		func(w *model.Workflow) model.RegistryKey { return w.Key() },
	)
	sinks := controller.NewFileEventSource(
		filepath.Join(dir, "sinks"),
		func() *model.Sink { return &model.Sink{} },
		func(s *model.Sink) model.RegistryKey { return s.Key() },
	)

	if err := sources.Start(); err != nil {
		return nil, nil, nil, err
	}
	if err := workflows.Start(); err != nil {
		sources.Stop()
		return nil, nil, nil, err
	}
	if err := sinks.Start(); err != nil {
		sources.Stop()
		workflows.Stop()
		return nil, nil, nil, err
	}

	return sources, workflows, sinks, nil
}
