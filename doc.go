// Package forcetap extracts Salesforce sObject records through the
// asynchronous Bulk API and streams them to a destination, governed by
// configurable daily API quota thresholds so a scheduled run never
// exhausts the org's allotment.
//
// A run authenticates with an OAuth2 refresh-token grant, resolves the
// configured streams against the REST describe endpoints, then opens
// one queryAll bulk job per stream: create job, submit the SOQL batch,
// close the job, poll the batch to a terminal state, and stream the
// CSV result sets row by row. Results are forward-only and lazy; a
// multi-gigabyte export never sits in memory at once.
//
// # Quota governance
//
// Every REST response carrying the Sforce-Limit-Info header is
// accounted against two thresholds: a ceiling on total daily allotment
// usage and a per-run request ceiling. Bulk jobs are additionally
// checked against the org's DailyBulkApiRequests limits before each
// job. Breaching either threshold is fatal to the run; nothing is
// retried.
//
// # Quick Start
//
//	import (
//	    "context"
//
//	    "github.com/datastreamhq/forcetap/internal/pipeline"
//	    "github.com/datastreamhq/forcetap/pkg/config"
//	    "github.com/datastreamhq/forcetap/pkg/connector/registry"
//	    "github.com/datastreamhq/forcetap/pkg/logger"
//
//	    _ "github.com/datastreamhq/forcetap/pkg/connector/destinations/jsonl"
//	    _ "github.com/datastreamhq/forcetap/pkg/connector/sources/salesforce"
//	)
//
//	cfg := config.NewBaseConfig("salesforce", "salesforce")
//	cfg.Credentials.ClientID = "..."
//	cfg.Credentials.ClientSecret = "..."
//	cfg.Credentials.RefreshToken = "..."
//	cfg.Streams = []config.StreamConfig{{Name: "Account", ReplicationKey: "SystemModstamp"}}
//
//	source, _ := registry.CreateSource("salesforce", cfg)
//	dest, _ := registry.CreateDestination("jsonl", cfg)
//
//	ctx := context.Background()
//	_ = source.Initialize(ctx, cfg)
//	_ = dest.Initialize(ctx, cfg)
//
//	p := pipeline.NewPipeline(source, dest, logger.Get())
//	err := p.Run(ctx)
//
// # Key Packages
//
//	pkg/salesforce   - Session, quota governor, and bulk job lifecycle
//	pkg/schema       - Field type to portable schema translation
//	pkg/catalog      - Stream selection and replication state
//	pkg/connector    - Connector framework for sources and destinations
//	internal/pipeline - Source to destination orchestration
//	cmd/forcetap     - CLI (discover, extract)
package forcetap
