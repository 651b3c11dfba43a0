package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"dsrgraph/internal/config"
	"dsrgraph/internal/connector"
	"dsrgraph/internal/graph"
	"dsrgraph/internal/identity"
	"dsrgraph/internal/metrics"
	"dsrgraph/internal/metrics/prompush"

	// register all connector kinds with the factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "dsrgraph/internal/connector/all"
)

// seedFlags collects repeatable -seed key=value pairs into an identity map.
type seedFlags map[string]any

func (s seedFlags) String() string { return fmt.Sprint(map[string]any(s)) }

func (s seedFlags) Set(v string) error {
	key, value, ok := strings.Cut(v, "=")
	if !ok || key == "" {
		return fmt.Errorf("expected key=value, got %q", v)
	}
	s[key] = value
	return nil
}

// main is the entry point for the graphlint binary. It loads dataset and SaaS
// configs, lints them, builds the dependency graph, and prints the execution
// plan for the supplied identity seeds.
func main() {
	var (
		cfgPath           string
		validate          bool
		erase             bool
		metricsBackendFlg string
		pushGatewayURLFlg string
	)
	seeds := seedFlags{}

	flag.StringVar(&cfgPath, "config", "configs/datasets.yaml", "dataset/SaaS config path (JSON or YAML)")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	flag.BoolVar(&erase, "erase", false, "plan an erasure traversal instead of an access traversal")
	flag.Var(seeds, "seed", "identity seed as key=value (repeatable)")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "", "metrics backend to use (pushgateway, none; default METRICS_BACKEND env or none)")
	flag.StringVar(&pushGatewayURLFlg, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	f, err := config.Load(cfgPath)
	if err != nil {
		fatalf("load config: %v", err)
	}

	issues := config.ValidateFile(*f)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if len(config.Errors(issues)) > 0 {
		log.Printf("configuration is invalid: %v", cfgPath)
		os.Exit(1)
	}
	if validate {
		log.Printf("configuration is valid: %v", cfgPath)
		os.Exit(0)
	}

	backendName := resolveMetricsBackend(metricsBackendFlg, os.Getenv("METRICS_BACKEND"))
	switch backendName {
	case "pushgateway":
		gwURL := pushGatewayURLFlg
		if gwURL == "" {
			gwURL = os.Getenv("PUSHGATEWAY_URL")
		}
		if gwURL == "" {
			gwURL = "http://localhost:9091"
		}
		b, err := prompush.NewBackend("graphlint", gwURL)
		if err != nil {
			log.Printf("metrics: failed to init prom push backend: %v; using nop", err)
		} else {
			log.Printf("metrics: url=%v, backend=%v", gwURL, backendName)
			metrics.SetBackend(b)
			defer func() {
				if err := metrics.Flush(); err != nil {
					log.Printf("metrics: flush error: %v", err)
				}
			}()
		}
	case "none":
		// metrics disabled; nop backend remains
	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}

	if *verbose {
		log.Printf("connector kinds: %s", strings.Join(connector.ListKinds(), ", "))
	}

	reg := graph.NewTypeRegistry()
	var datasets []*graph.Dataset
	for _, ds := range f.Datasets {
		d, err := config.BuildDataset(ds, reg, nil)
		if err != nil {
			fatalf("build dataset %s: %v", ds.Name, err)
		}
		datasets = append(datasets, d)
	}
	for _, s := range f.SaaS {
		d, err := config.SynthesizeDataset(s, reg, nil)
		if err != nil {
			fatalf("synthesize saas %s: %v", s.Name, err)
		}
		datasets = append(datasets, d)
	}

	g, err := graph.NewGraph(datasets...)
	if err != nil {
		fatalf("%v", err)
	}
	log.Printf("graph: %d collection(s), %d identity seed(s)", len(g.Nodes), len(g.Seeds))

	if len(seeds) == 0 {
		// No seeds given: nothing to plan, but the graph itself is sound.
		log.Printf("no identity seeds given; pass -seed key=value to print an execution plan")
		return
	}

	ident := identity.Normalize(identity.Payload(seeds))

	var tr *graph.Traversal
	if erase {
		tr, err = graph.NewErasureTraversal(g, ident)
	} else {
		tr, err = graph.NewTraversal(g, ident)
	}
	if err != nil {
		fatalf("%v", err)
	}

	for i, tier := range tr.ReadySets() {
		names := make([]string, len(tier))
		for j, a := range tier {
			names[j] = a.String()
		}
		fmt.Printf("tier %d: %s\n", i, strings.Join(names, ", "))
	}
}

// resolveMetricsBackend applies the flag → env → default fallback.
func resolveMetricsBackend(flagVal, envVal string) string {
	if flagVal != "" {
		return flagVal
	}
	if envVal != "" {
		return envVal
	}
	return "none"
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
