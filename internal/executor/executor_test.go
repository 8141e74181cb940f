package executor_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/pixellens/internal/executor"
)

type fakeDriver struct {
	calls   []string
	missing map[string]bool
}

func (f *fakeDriver) do(call, selector string) error {
	if f.missing[selector] {
		return errors.New("element not found: " + selector)
	}
	f.calls = append(f.calls, call)
	return nil
}

func (f *fakeDriver) Click(_ context.Context, s string) error { return f.do("click "+s, s) }
func (f *fakeDriver) Type(_ context.Context, s, text string) error {
	return f.do("type "+s+"="+text, s)
}
func (f *fakeDriver) Select(_ context.Context, s, opt string) error {
	return f.do("select "+s+"="+opt, s)
}
func (f *fakeDriver) Press(_ context.Context, key string) error { return f.do("press "+key, "") }
func (f *fakeDriver) Scroll(_ context.Context, dx, dy int) error {
	return f.do("scroll", "")
}
func (f *fakeDriver) Hover(_ context.Context, s string) error { return f.do("hover "+s, s) }
func (f *fakeDriver) Navigate(_ context.Context, u string) error { return f.do("navigate "+u, "") }

func TestExecuteBatchRunsAll(t *testing.T) {
	d := &fakeDriver{}
	res, err := executor.ExecuteBatch(context.Background(), d, []executor.Action{
		{Type: "type", Selector: "#q", Text: "shoes"},
		{Type: "press", Text: "Enter"},
		{Type: "scroll", Y: 400},
		{Type: "hover", Selector: ".menu"},
		{Type: "select", Selector: "#size", Text: "42"},
		{Type: "navigate", URL: "https://shop.example/cart"},
	}, executor.Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"type #q=shoes", "press Enter", "scroll", "hover .menu", "select #size=42", "navigate https://shop.example/cart",
	}, d.calls)
	assert.Len(t, res.Completed, 6)
	assert.Empty(t, res.Failed)
	assert.False(t, res.HitCheckpoint)
	assert.Equal(t, -1, res.CheckpointIndex)
}

func TestExecuteBatchStopsAtCheckpoint(t *testing.T) {
	d := &fakeDriver{}
	res, err := executor.ExecuteBatch(context.Background(), d, []executor.Action{
		{Type: "click", Selector: "#menu"},
		{Type: "click", Selector: "#open", Checkpoint: true},
		{Type: "click", Selector: "#never"},
	}, executor.Options{})
	require.NoError(t, err)

	assert.True(t, res.HitCheckpoint)
	assert.Equal(t, 1, res.CheckpointIndex)
	assert.Equal(t, []string{"click #menu", "click #open"}, d.calls)
}

func TestExecuteBatchSkipsFailures(t *testing.T) {
	d := &fakeDriver{missing: map[string]bool{"#gone": true}}
	res, err := executor.ExecuteBatch(context.Background(), d, []executor.Action{
		{Type: "click", Selector: "#gone", Checkpoint: true},
		{Type: "teleport"},
		{Type: "navigate"},
		{Type: "click", Selector: "#buy"},
	}, executor.Options{})
	require.NoError(t, err)

	require.Len(t, res.Failed, 3)
	assert.Equal(t, "#gone", res.Failed[0].Action.Selector)
	assert.EqualError(t, res.Failed[1].Err, "unknown action type: teleport")
	assert.False(t, res.HitCheckpoint, "a failed checkpoint action does not count")
	assert.Equal(t, []string{"click #buy"}, d.calls)
}

func TestExecuteBatchHonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	d := &fakeDriver{}
	start := time.Now()
	res, err := executor.ExecuteBatch(ctx, d, []executor.Action{
		{Type: "wait", Duration: 10_000},
		{Type: "click", Selector: "#late"},
	}, executor.Options{})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Empty(t, d.calls)
	assert.Empty(t, res.Completed)
}

func TestActionString(t *testing.T) {
	assert.Equal(t, `type "a@b.c" into #email`, executor.Action{Type: "type", Selector: "#email", Text: "a@b.c"}.String())
	assert.Equal(t, "click #buy", executor.Action{Type: "click", Selector: "#buy"}.String())
	assert.Equal(t, "scroll by 0,300", executor.Action{Type: "scroll", Y: 300}.String())
}
