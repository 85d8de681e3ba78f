/*
Copyright 2024.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"flag"
	"os"

	"github.com/apptrail-sh/podrun/internal/buildinfo"
	"github.com/apptrail-sh/podrun/internal/cluster"
	"github.com/apptrail-sh/podrun/internal/hooks"
	"github.com/apptrail-sh/podrun/internal/hooks/controlplane"
	"github.com/apptrail-sh/podrun/internal/hooks/pubsub"
	"github.com/apptrail-sh/podrun/internal/lifecycle"
	"github.com/apptrail-sh/podrun/internal/model"
	"github.com/apptrail-sh/podrun/internal/runner"
	"github.com/apptrail-sh/podrun/internal/workload"

	// Import all Kubernetes client auth plugins (e.g. Azure, GCP, OIDC, etc.)
	// to ensure that exec-entrypoint and run can make use of them.
	_ "k8s.io/client-go/plugin/pkg/client/auth"

	"k8s.io/client-go/kubernetes"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

var setupLog = ctrl.Log.WithName("setup")

// config holds all command-line configuration
type config struct {
	podName         string
	namespace       string
	image           string
	command         string
	watchTimeout    int64
	separateOutputs bool

	follow        bool
	logContainer  string
	logTail       int64
	logSince      int64
	logTimestamps bool

	controlPlaneURL string
	pubsubTopic     string
	clusterID       string
	environment     string
}

func main() {
	cfg := parseFlags()

	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&zap.Options{Development: true})))

	ctx := ctrl.SetupSignalHandler()

	restConfig := ctrl.GetConfigOrDie()
	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		setupLog.Error(err, "unable to build clientset")
		os.Exit(1)
	}
	client := lifecycle.NewKubeClient(clientset, restConfig, cfg.namespace)

	runnerVersion := buildinfo.Version()
	publishers := setupPublishers(ctx, cfg, runnerVersion)

	var updates chan model.RunUpdate
	var queue *hooks.EventPublisherQueue
	if len(publishers) > 0 {
		updates = make(chan model.RunUpdate, 16)
		queue = hooks.NewEventPublisherQueue(updates, publishers)
		go queue.Loop()
	}

	desc := workload.Descriptor{
		Name:      cfg.podName,
		Namespace: cfg.namespace,
		Image:     cfg.image,
		Command:   []string{"sh", "-c", cfg.command},
	}

	run := runner.New(client, runner.Config{
		WatchTimeoutSeconds: cfg.watchTimeout,
		SeparateOutputs:     cfg.separateOutputs,
		Logs:                buildLogOptions(cfg),
	}, updates)

	setupLog.Info("starting pod run",
		"pod", desc.Name,
		"namespace", desc.Namespace,
		"image", desc.Image,
	)
	runErr := run.Run(ctx, desc)

	// Let queued stage events reach their publishers before exiting.
	if updates != nil {
		close(updates)
		<-queue.Done()
	}

	if runErr != nil {
		setupLog.Error(runErr, "pod run failed", "pod", cfg.podName)
		os.Exit(1)
	}
}

func parseFlags() config {
	var cfg config

	flag.StringVar(&cfg.podName, "pod-name", "podrun-demo", "Name of the pod to create and run.")
	flag.StringVar(&cfg.namespace, "namespace", "default", "Namespace to run the pod in.")
	flag.StringVar(&cfg.image, "image", "alpine", "Container image for the pod.")
	flag.StringVar(&cfg.command, "command", `echo 'Hello from podrun' && sleep 10`,
		"Shell command the container runs (wrapped in sh -c).")
	flag.Int64Var(&cfg.watchTimeout, "watch-timeout", lifecycle.DefaultWatchTimeoutSeconds,
		"Seconds to wait for the pod to reach the Running phase.")
	flag.BoolVar(&cfg.separateOutputs, "separate-outputs", false,
		"Forward the attached process's stdout and stderr to separate streams instead of merging them.")

	flag.BoolVar(&cfg.follow, "follow", true, "Follow the log stream until the pod's process exits.")
	flag.StringVar(&cfg.logContainer, "log-container", "", "Container to fetch logs from (defaults to the only container).")
	flag.Int64Var(&cfg.logTail, "log-tail", -1, "Number of log lines from the end to fetch, -1 for all.")
	flag.Int64Var(&cfg.logSince, "log-since-seconds", -1, "Only fetch logs newer than this many seconds, -1 for all.")
	flag.BoolVar(&cfg.logTimestamps, "log-timestamps", false, "Prefix each log line with its timestamp.")

	flag.StringVar(&cfg.controlPlaneURL, "controlplane-url", "",
		"The URL of the AppTrail Control Plane to publish run events to (e.g., http://controlplane:3000/ingest/v1/runner/events)")
	flag.StringVar(&cfg.pubsubTopic, "pubsub-topic", os.Getenv("PUBSUB_TOPIC"),
		"Google Cloud Pub/Sub topic path for run events (projects/<project>/topics/<topic>)")
	flag.StringVar(&cfg.clusterID, "cluster-id", os.Getenv("CLUSTER_ID"),
		"Unique identifier for this cluster (e.g., staging.stg01); autodetected on GKE when empty")
	flag.StringVar(&cfg.environment, "environment", os.Getenv("ENVIRONMENT"),
		"Environment name attached to run events")

	opts := zap.Options{Development: true}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	return cfg
}

func buildLogOptions(cfg config) lifecycle.LogOptions {
	opts := lifecycle.LogOptions{
		Follow:     cfg.follow,
		Container:  cfg.logContainer,
		Timestamps: cfg.logTimestamps,
	}
	if cfg.logTail >= 0 {
		tail := cfg.logTail
		opts.TailLines = &tail
	}
	if cfg.logSince >= 0 {
		since := cfg.logSince
		opts.SinceSeconds = &since
	}
	return opts
}

func setupPublishers(ctx context.Context, cfg config, runnerVersion string) []hooks.EventPublisher {
	var publishers []hooks.EventPublisher

	if cfg.controlPlaneURL == "" && cfg.pubsubTopic == "" {
		setupLog.Info("No event publishers configured, run events will only be exported as metrics")
		return nil
	}

	clusterID := resolveClusterID(ctx, cfg)

	if cfg.controlPlaneURL != "" {
		cpPublisher := controlplane.NewHTTPPublisher(cfg.controlPlaneURL, clusterID, cfg.environment, runnerVersion)
		publishers = append(publishers, cpPublisher)
		setupLog.Info("Control Plane publisher enabled",
			"endpoint", cfg.controlPlaneURL,
			"clusterID", clusterID)
	}

	if cfg.pubsubTopic != "" {
		pubsubPublisher, err := pubsub.NewPubSubPublisher(ctx, cfg.pubsubTopic, clusterID, cfg.environment, runnerVersion)
		if err != nil {
			setupLog.Error(err, "unable to create Pub/Sub publisher",
				"hint", "Ensure valid credentials via Workload Identity, GOOGLE_APPLICATION_CREDENTIALS, or gcloud auth")
			os.Exit(1)
		}
		publishers = append(publishers, pubsubPublisher)
		setupLog.Info("Google Pub/Sub publisher enabled",
			"topic", cfg.pubsubTopic,
			"clusterID", clusterID)
	}

	return publishers
}

func resolveClusterID(ctx context.Context, cfg config) string {
	if cfg.clusterID != "" {
		return cfg.clusterID
	}

	clusterID, err := cluster.NewDetector().ResolveID(ctx)
	if err != nil {
		setupLog.Error(err, "cluster-id is required when publishers are configured and autodetection failed")
		os.Exit(1)
	}
	setupLog.Info("Cluster ID autodetected", "clusterID", clusterID)
	return clusterID
}
