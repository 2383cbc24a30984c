package runstate

import (
	"fmt"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/antigravity-dev/prospector/internal/corestore"
	"github.com/antigravity-dev/prospector/internal/dedupe"
	"github.com/antigravity-dev/prospector/internal/discovery"
	"github.com/antigravity-dev/prospector/internal/enrichment"
	"github.com/antigravity-dev/prospector/internal/fetcher"
	"github.com/antigravity-dev/prospector/internal/jobqueue"
)

// TaskQueue is the Temporal task queue every run-state worker polls.
const TaskQueue = "prospector-run-task-queue"

// StartWorker connects to Temporal at hostPort and starts the run-state
// worker, registering RunWorkflow and every Activities method. Grounded on
// the teacher's internal/temporal/worker.go StartWorker shape (dial, build a
// worker.New, register workflows then activities, run until interrupted).
func StartWorker(hostPort string, store *corestore.Store, queue *jobqueue.Queue, f *fetcher.Fetcher, dd *dedupe.Resolver, ledger *enrichment.Ledger, registry *discovery.Registry) error {
	c, err := client.Dial(client.Options{HostPort: hostPort})
	if err != nil {
		return fmt.Errorf("dial temporal: %w", err)
	}
	defer c.Close()

	w := worker.New(c, TaskQueue, worker.Options{})

	acts := &Activities{
		Store:      store,
		Queue:      queue,
		Fetcher:    f,
		Dedupe:     dd,
		Enrichment: ledger,
		Discovery:  registry,
	}

	w.RegisterWorkflow(RunWorkflow)

	w.RegisterActivity(acts.AcquireURLsActivity)
	w.RegisterActivity(acts.FetchURLSourcesActivity)
	w.RegisterActivity(acts.ExtractSourcesActivity)
	w.RegisterActivity(acts.DedupeProspectsActivity)
	w.RegisterActivity(acts.EnrichCompaniesActivity)
	w.RegisterActivity(acts.ExecDiscoveryActivity)
	w.RegisterActivity(acts.FinalizeActivity)

	return w.Run(worker.InterruptCh())
}
