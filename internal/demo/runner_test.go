package demo

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

type recordingRegistry struct {
	worms []string
}

func (r *recordingRegistry) AddWorm(id string) {
	r.worms = append(r.worms, id)
}

func TestSpecForKnownScenarios(t *testing.T) {
	for _, name := range Scenarios() {
		spec, err := specFor(name)
		if err != nil {
			t.Errorf("specFor(%s): %v", name, err)
		}
		if spec.food == 0 {
			t.Errorf("scenario %s has no food", name)
		}
	}
}

func TestSpecForUnknownScenario(t *testing.T) {
	if _, err := specFor("swimming"); err == nil {
		t.Error("expected error for unknown scenario")
	}
}

func TestScenarioShapes(t *testing.T) {
	obstacle, _ := specFor(ScenarioObstacleAvoidance)
	basic, _ := specFor(ScenarioBasic)
	if obstacle.obstacles <= basic.obstacles {
		t.Error("obstacle_avoidance should have more obstacles than basic")
	}

	learning, _ := specFor(ScenarioLearning)
	if !learning.consolidate {
		t.Error("learning scenario should end with a consolidation pass")
	}
	if basic.consolidate {
		t.Error("basic scenario should not force consolidation")
	}
}

func TestBusyRunnerDoesNotRegisterWorm(t *testing.T) {
	r := NewRunner(nil, nil, 0, 0, zap.NewNop())
	reg := &recordingRegistry{}
	r.SetRegistry(reg)

	r.mu.Lock()
	r.running = true
	r.mu.Unlock()

	_, err := r.Run(context.Background(), ScenarioBasic, time.Second)
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("err = %v, want ErrBusy", err)
	}
	if len(reg.worms) != 0 {
		t.Errorf("rejected run registered worms %v, want none", reg.worms)
	}
}

func TestStatusIdle(t *testing.T) {
	r := NewRunner(nil, nil, 0, 0, zap.NewNop())
	st := r.Status()
	if st.Running {
		t.Error("fresh runner should be idle")
	}
	if st.Scenario != "" {
		t.Errorf("idle status scenario = %q, want empty", st.Scenario)
	}
}
