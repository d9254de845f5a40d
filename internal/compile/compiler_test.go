package compile_test

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourceplane/flowforge/internal/compile"
	"github.com/sourceplane/flowforge/internal/pipeline"
	"github.com/sourceplane/flowforge/internal/planengine"
)

// fakeEngine records every compiler call in order.
type fakeEngine struct {
	created       []compile.TaskSpec
	displayNames  map[string]string
	edges         [][2]string
	opened        []compile.Predicate
	openedNames   []string
	closed        int
	notifications []compile.NotificationSpec

	createErr error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{displayNames: map[string]string{}}
}

type fakeRef struct {
	name string
}

func (r *fakeRef) Output(field string) any {
	return fmt.Sprintf("deferred:%s.%s", r.name, field)
}

func (f *fakeEngine) CreateTask(spec compile.TaskSpec) (compile.TaskRef, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, spec)
	return &fakeRef{name: spec.Name}, nil
}

func (f *fakeEngine) SetDisplayName(task compile.TaskRef, name string) {
	f.displayNames[task.(*fakeRef).name] = name
}

func (f *fakeEngine) AddOrderingEdge(from, to compile.TaskRef) error {
	f.edges = append(f.edges, [2]string{from.(*fakeRef).name, to.(*fakeRef).name})
	return nil
}

func (f *fakeEngine) OpenConditionalScope(pred compile.Predicate, name string) error {
	f.opened = append(f.opened, pred)
	f.openedNames = append(f.openedNames, name)
	return nil
}

func (f *fakeEngine) CloseConditionalScope() { f.closed++ }

func (f *fakeEngine) WrapWithCompletionHandler(spec compile.NotificationSpec, body func() error) error {
	f.notifications = append(f.notifications, spec)
	return body()
}

func functionOpts() pipeline.Options {
	return pipeline.Options{Command: []string{"python", "step.py"}}
}

// buildTrainingPipeline assembles train -> eval -> conditional deploy, the
// canonical shape the end-to-end examples use.
func buildTrainingPipeline(t *testing.T) *pipeline.Builder {
	t.Helper()
	b := pipeline.New("training", "gs://bucket/root", "")

	train, err := b.AddStep("train", pipeline.KindFunction, map[string]any{
		"epochs": b.Parameter("epochs"),
	}, nil, functionOpts())
	require.NoError(t, err)

	eval, err := b.AddStep("eval", pipeline.KindFunction, map[string]any{
		"model": train.Output("model_uri"),
	}, nil, functionOpts())
	require.NoError(t, err)

	err = b.Condition(eval.Output("accuracy"), pipeline.OpGreater, 0.9, "deploy-gate", func() error {
		_, err := b.AddStep("deploy", pipeline.KindFunction, map[string]any{
			"model": train.Output("model_uri"),
		}, nil, functionOpts())
		return err
	})
	require.NoError(t, err)

	return b
}

func TestCompileEmitsTasksInDeclarationOrder(t *testing.T) {
	b := buildTrainingPipeline(t)
	eng := newFakeEngine()

	err := compile.Compile(b, compile.Options{Parameters: map[string]any{"epochs": 10}}, eng)
	require.NoError(t, err)

	require.Len(t, eng.created, 3)
	assert.Equal(t, "train", eng.created[0].Name)
	assert.Equal(t, "eval", eng.created[1].Name)
	assert.Equal(t, "deploy", eng.created[2].Name)

	// Parameter references resolve to literals; producer references stay
	// deferred in whatever shape the engine hands back.
	assert.Equal(t, 10, eng.created[0].Inputs["epochs"])
	assert.Equal(t, "deferred:train.model_uri", eng.created[1].Inputs["model"])

	assert.Equal(t, "train", eng.displayNames["train"])
	assert.Equal(t, "eval", eng.displayNames["eval"])
}

func TestCompileConditionalScope(t *testing.T) {
	b := buildTrainingPipeline(t)
	eng := newFakeEngine()

	require.NoError(t, compile.Compile(b, compile.Options{Parameters: map[string]any{"epochs": 1}}, eng))

	require.Len(t, eng.opened, 1)
	assert.Equal(t, "deploy-gate", eng.openedNames[0])
	assert.Equal(t, "deferred:eval.accuracy", eng.opened[0].Left)
	assert.Equal(t, ">", eng.opened[0].Operator)
	assert.Equal(t, 0.9, eng.opened[0].Right)
	assert.Equal(t, 1, eng.closed)
}

func TestCompileAutoNamesConditions(t *testing.T) {
	b := pipeline.New("p", "gs://root", "")
	require.NoError(t, b.Condition("a", pipeline.OpEqual, "a", "", func() error {
		_, err := b.AddStep("one", pipeline.KindFunction, nil, nil, functionOpts())
		return err
	}))
	require.NoError(t, b.Condition("b", pipeline.OpEqual, "b", "", func() error {
		_, err := b.AddStep("two", pipeline.KindFunction, nil, nil, functionOpts())
		return err
	}))

	eng := newFakeEngine()
	require.NoError(t, compile.Compile(b, compile.Options{}, eng))
	assert.Equal(t, []string{"condition-1", "condition-2"}, eng.openedNames)
}

func TestCompileBaseImagePrecedence(t *testing.T) {
	b := pipeline.New("p", "gs://root", "")
	_, err := b.AddStep("plain", pipeline.KindFunction, nil, nil, functionOpts())
	require.NoError(t, err)
	override := functionOpts()
	override.BaseImage = "registry/custom:1"
	_, err = b.AddStep("custom", pipeline.KindFunction, nil, nil, override)
	require.NoError(t, err)

	eng := newFakeEngine()
	require.NoError(t, compile.Compile(b, compile.Options{BaseImage: "registry/shared:1"}, eng))

	assert.Equal(t, "registry/shared:1", eng.created[0].BaseImage)
	assert.Equal(t, "registry/custom:1", eng.created[1].BaseImage)
}

func TestCompileOrderingEdges(t *testing.T) {
	b := pipeline.New("p", "gs://root", "")
	first, err := b.AddStep("first", pipeline.KindFunction, nil, nil, functionOpts())
	require.NoError(t, err)
	_, err = b.AddStep("second", pipeline.KindFunction, nil, []pipeline.Task{first}, functionOpts())
	require.NoError(t, err)

	eng := newFakeEngine()
	require.NoError(t, compile.Compile(b, compile.Options{}, eng))

	require.Len(t, eng.edges, 1)
	assert.Equal(t, [2]string{"first", "second"}, eng.edges[0])
}

func TestCompileDanglingDependency(t *testing.T) {
	// A handle from a different builder names a step this graph never
	// instantiated.
	other := pipeline.New("other", "gs://root", "")
	foreign, err := other.AddStep("elsewhere", pipeline.KindFunction, nil, nil, functionOpts())
	require.NoError(t, err)

	b := pipeline.New("p", "gs://root", "")
	_, err = b.AddStep("mine", pipeline.KindFunction, nil, []pipeline.Task{foreign}, functionOpts())
	require.NoError(t, err)

	err = compile.Compile(b, compile.Options{}, newFakeEngine())
	require.ErrorIs(t, err, compile.ErrDanglingDependency)
}

func TestCompileBranchScoping(t *testing.T) {
	t.Run("input reference", func(t *testing.T) {
		b := pipeline.New("p", "gs://root", "")
		var inner pipeline.Task
		require.NoError(t, b.Condition("a", pipeline.OpEqual, "a", "gate", func() error {
			var err error
			inner, err = b.AddStep("inner", pipeline.KindFunction, nil, nil, functionOpts())
			return err
		}))
		_, err := b.AddStep("outer", pipeline.KindFunction, map[string]any{
			"value": inner.Output("result"),
		}, nil, functionOpts())
		require.NoError(t, err)

		err = compile.Compile(b, compile.Options{}, newFakeEngine())
		require.ErrorIs(t, err, compile.ErrBranchScoped)
	})

	t.Run("ordering edge", func(t *testing.T) {
		b := pipeline.New("p", "gs://root", "")
		var inner pipeline.Task
		require.NoError(t, b.Condition("a", pipeline.OpEqual, "a", "gate", func() error {
			var err error
			inner, err = b.AddStep("inner", pipeline.KindFunction, nil, nil, functionOpts())
			return err
		}))
		_, err := b.AddStep("outer", pipeline.KindFunction, nil, []pipeline.Task{inner}, functionOpts())
		require.NoError(t, err)

		err = compile.Compile(b, compile.Options{}, newFakeEngine())
		require.ErrorIs(t, err, compile.ErrBranchScoped)
	})

	t.Run("enclosing scope visible from branch", func(t *testing.T) {
		b := pipeline.New("p", "gs://root", "")
		prep, err := b.AddStep("prep", pipeline.KindFunction, nil, nil, functionOpts())
		require.NoError(t, err)
		require.NoError(t, b.Condition("a", pipeline.OpEqual, "a", "gate", func() error {
			_, err := b.AddStep("inner", pipeline.KindFunction, map[string]any{
				"data": prep.Output("path"),
			}, []pipeline.Task{prep}, functionOpts())
			return err
		}))

		require.NoError(t, compile.Compile(b, compile.Options{}, newFakeEngine()))
	})
}

func TestCompileFailedBranchStillClosesScope(t *testing.T) {
	b := pipeline.New("p", "gs://root", "")
	require.NoError(t, b.Condition("a", pipeline.OpEqual, "a", "gate", func() error {
		_, err := b.AddStep("inner", pipeline.KindFunction, map[string]any{
			"missing": b.Parameter("nope"),
		}, nil, functionOpts())
		return err
	}))

	eng := newFakeEngine()
	err := compile.Compile(b, compile.Options{}, eng)
	require.Error(t, err)

	// The branch child failed, but the engine must not be left with a
	// dangling open scope.
	assert.Equal(t, len(eng.opened), eng.closed)
}

func TestCompileUnknownParameter(t *testing.T) {
	b := pipeline.New("p", "gs://root", "")
	_, err := b.AddStep("x", pipeline.KindFunction, map[string]any{
		"missing": b.Parameter("nope"),
	}, nil, functionOpts())
	require.NoError(t, err)

	err = compile.Compile(b, compile.Options{}, newFakeEngine())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `step "x" input "missing"`)
}

func TestCompileExitNotificationWrapsWholeCompile(t *testing.T) {
	b := buildTrainingPipeline(t)
	require.NoError(t, b.AddExitNotification([]string{"oncall@example.com"}))

	eng := newFakeEngine()
	require.NoError(t, compile.Compile(b, compile.Options{Parameters: map[string]any{"epochs": 1}}, eng))

	require.Len(t, eng.notifications, 1)
	assert.Equal(t, []string{"oncall@example.com"}, eng.notifications[0].Recipients)
	assert.Len(t, eng.created, 3)
}

func TestCompileSurfacesEngineErrors(t *testing.T) {
	b := buildTrainingPipeline(t)
	eng := newFakeEngine()
	eng.createErr = fmt.Errorf("quota exhausted")

	err := compile.Compile(b, compile.Options{Parameters: map[string]any{"epochs": 1}}, eng)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `step "train"`)
	assert.Contains(t, err.Error(), "quota exhausted")
}

func TestCompileRejectsOpenCondition(t *testing.T) {
	b := pipeline.New("p", "gs://root", "")
	require.NoError(t, b.BeginCondition("a", pipeline.OpEqual, "a", "gate"))

	err := compile.Compile(b, compile.Options{}, newFakeEngine())
	require.ErrorIs(t, err, pipeline.ErrConditionOpen)
}

func TestCompileIsDeterministic(t *testing.T) {
	params := map[string]any{"epochs": 5}

	plans := make([]any, 2)
	for i := range plans {
		eng := planengine.New("training", "", "gs://bucket/root")
		require.NoError(t, compile.Compile(buildTrainingPipeline(t), compile.Options{Parameters: params}, eng))
		plans[i] = eng.Plan()
	}

	if diff := cmp.Diff(plans[0], plans[1]); diff != "" {
		t.Fatalf("plans differ between identical compiles:\n%s", diff)
	}
}
