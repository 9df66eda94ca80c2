package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cucumber/godog"

	"github.com/custodia-labs/tasksync/internal/core/domain"
	"github.com/custodia-labs/tasksync/internal/core/ports/driven/mocks"
)

// reconcileWorld is the per-scenario state of the reconcile feature.
type reconcileWorld struct {
	engine *SyncEngine
	lock   *mocks.MockDistributedLock
	remote map[string]*mocks.MockConnector
	result *domain.CycleResult
	err    error
}

func (w *reconcileWorld) aSyncEngineDrivenBy(name string) error {
	direction := domain.DirectionService1To2
	if name == "two" {
		direction = domain.DirectionService2To1
	}
	one := mocks.NewMockConnector("one", 1000)
	two := mocks.NewMockConnector("two", 5000)
	w.lock = mocks.NewMockDistributedLock()
	w.remote = map[string]*mocks.MockConnector{"one": one, "two": two}
	w.engine = NewSyncEngine(SyncEngineConfig{
		Service1:        NewAdapter(one),
		Service2:        NewAdapter(two),
		Database:        mocks.NewMockDocumentDatabase(),
		Lock:            w.lock,
		Direction:       direction,
		RetryDelay:      time.Millisecond,
		PollingInterval: time.Hour,
		StoreTimeout:    time.Second,
	})
	return w.engine.Init(context.Background())
}

func (w *reconcileWorld) service(name string) (*mocks.MockConnector, error) {
	c, ok := w.remote[name]
	if !ok {
		return nil, fmt.Errorf("no service %q", name)
	}
	return c, nil
}

func (w *reconcileWorld) serviceHasTask(name, state, id, title string) error {
	c, err := w.service(name)
	if err != nil {
		return err
	}
	c.Seed(task(id, title, "", state == "completed"))
	return nil
}

func (w *reconcileWorld) aSyncCycleRuns() error {
	w.result, w.err = w.engine.Sync(context.Background())
	return nil
}

func (w *reconcileWorld) theCycleReports(newCount, updated, duplicate int) error {
	if w.err != nil {
		return fmt.Errorf("cycle failed: %w", w.err)
	}
	got := [3]int{w.result.New, w.result.Updated, w.result.Duplicate}
	want := [3]int{newCount, updated, duplicate}
	if got != want {
		return fmt.Errorf("expected new/updated/duplicate %v, got %v", want, got)
	}
	return nil
}

func (w *reconcileWorld) serviceHolds(name string, count int) error {
	c, err := w.service(name)
	if err != nil {
		return err
	}
	if c.Len() != count {
		return fmt.Errorf("expected %d tasks on %s, got %d", count, name, c.Len())
	}
	return nil
}

func (w *reconcileWorld) syncRecordsExist(count int) error {
	if got := len(w.engine.Records().Records()); got != count {
		return fmt.Errorf("expected %d sync records, got %d", count, got)
	}
	return nil
}

func (w *reconcileWorld) taskIsRenamed(name, id, title string) error {
	c, err := w.service(name)
	if err != nil {
		return err
	}
	_, err = c.Update(context.Background(), id, domain.NativeItem{"name": title})
	return err
}

func (w *reconcileWorld) taskIsCompleted(name, id string) error {
	c, err := w.service(name)
	if err != nil {
		return err
	}
	_, err = c.Update(context.Background(), id, domain.NativeItem{"done": true})
	return err
}

// counterpart resolves the paired item of a task on service one.
func (w *reconcileWorld) counterpart(id string) (domain.NativeItem, error) {
	rec, ok, err := w.engine.Records().SyncExists(id, "")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("task %q is not paired", id)
	}
	item, ok := w.remote["two"].Item(rec.ID2)
	if !ok {
		return nil, fmt.Errorf("counterpart %q missing", rec.ID2)
	}
	return item, nil
}

func (w *reconcileWorld) counterpartIsTitled(id, title string) error {
	item, err := w.counterpart(id)
	if err != nil {
		return err
	}
	if got := item.String("name"); got != title {
		return fmt.Errorf("expected title %q, got %q", title, got)
	}
	return nil
}

func (w *reconcileWorld) counterpartIsCompleted(id string) error {
	item, err := w.counterpart(id)
	if err != nil {
		return err
	}
	if !item.Bool("done") {
		return fmt.Errorf("expected counterpart of %q to be completed", id)
	}
	return nil
}

func (w *reconcileWorld) anotherCycleHoldsTheLock() error {
	w.lock.SetLockHeld("sync", time.Minute)
	return nil
}

func (w *reconcileWorld) theCycleIsRejectedAsLocked() error {
	if !errors.Is(w.err, domain.ErrLocked) {
		return fmt.Errorf("expected lock error, got %v", w.err)
	}
	return nil
}

func initializeReconcileScenario(sc *godog.ScenarioContext) {
	w := &reconcileWorld{}

	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		*w = reconcileWorld{}
		return ctx, nil
	})

	sc.Step(`^a sync engine driven by "([^"]*)"$`, w.aSyncEngineDrivenBy)
	sc.Step(`^service "([^"]*)" has an? (open|completed) task "([^"]*)" titled "([^"]*)"$`, w.serviceHasTask)
	sc.Step(`^a sync cycle runs$`, w.aSyncCycleRuns)
	sc.Step(`^the cycle reports (\d+) new, (\d+) updated and (\d+) duplicate items?$`, w.theCycleReports)
	sc.Step(`^service "([^"]*)" holds (\d+) tasks?$`, w.serviceHolds)
	sc.Step(`^(\d+) sync records? exists?$`, w.syncRecordsExist)
	sc.Step(`^service "([^"]*)" task "([^"]*)" is renamed to "([^"]*)"$`, w.taskIsRenamed)
	sc.Step(`^service "([^"]*)" task "([^"]*)" is completed$`, w.taskIsCompleted)
	sc.Step(`^the counterpart of "([^"]*)" is titled "([^"]*)"$`, w.counterpartIsTitled)
	sc.Step(`^the counterpart of "([^"]*)" is completed$`, w.counterpartIsCompleted)
	sc.Step(`^another cycle holds the lock$`, w.anotherCycleHoldsTheLock)
	sc.Step(`^the cycle is rejected as locked$`, w.theCycleIsRejectedAsLocked)
}

func TestReconcileFeatures(t *testing.T) {
	suite := godog.TestSuite{
		Name:                "reconcile",
		ScenarioInitializer: initializeReconcileScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("reconcile feature scenarios failed")
	}
}
