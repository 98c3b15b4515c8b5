package simnode

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingComponent implements every capability and records the hooks
// invoked across all instances sharing the same journal.
type recordingComponent struct {
	name    string
	journal *[]string

	initErr  error
	tenseErr error
	startErr error
}

func (c *recordingComponent) record(hook string) {
	*c.journal = append(*c.journal, c.name+"."+hook)
}

func (c *recordingComponent) Name() string { return c.name }

func (c *recordingComponent) Initialize() error {
	c.record("initialize")
	return c.initErr
}

func (c *recordingComponent) Deinitialize() error {
	c.record("deinitialize")
	return nil
}

func (c *recordingComponent) Tense() error {
	c.record("tense")
	return c.tenseErr
}

func (c *recordingComponent) Relax() error {
	c.record("relax")
	return nil
}

func (c *recordingComponent) Start() error {
	c.record("start")
	return c.startErr
}

func (c *recordingComponent) Stop() error {
	c.record("stop")
	return nil
}

func (c *recordingComponent) Pause() error {
	c.record("pause")
	return nil
}

func TestComponentsRegisterRejectsDuplicates(t *testing.T) {
	journal := []string{}
	components := NewComponents(NopLogger{})

	require.NoError(t, components.Register(&recordingComponent{name: "a", journal: &journal}))
	err := components.Register(&recordingComponent{name: "a", journal: &journal})
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestComponentsOrderAndReverseOrder(t *testing.T) {
	journal := []string{}
	components := NewComponents(NopLogger{})
	require.NoError(t, components.Register(&recordingComponent{name: "a", journal: &journal}))
	require.NoError(t, components.Register(&recordingComponent{name: "b", journal: &journal}))

	require.NoError(t, components.Start())
	require.NoError(t, components.Stop())

	assert.Equal(t, []string{"a.start", "b.start", "b.stop", "a.stop"}, journal)
}

func TestComponentsInitializeRollsBackOnFailure(t *testing.T) {
	journal := []string{}
	components := NewComponents(NopLogger{})
	require.NoError(t, components.Register(&recordingComponent{name: "a", journal: &journal}))
	require.NoError(t, components.Register(&recordingComponent{
		name: "b", journal: &journal, initErr: errors.New("boom")}))

	err := components.Initialize()
	require.Error(t, err)
	assert.Equal(t, []string{"a.initialize", "b.initialize", "a.deinitialize"}, journal)
}

func TestComponentsTenseRelaxesPriorOnFailure(t *testing.T) {
	journal := []string{}
	components := NewComponents(NopLogger{})
	require.NoError(t, components.Register(&recordingComponent{name: "a", journal: &journal}))
	require.NoError(t, components.Register(&recordingComponent{
		name: "b", journal: &journal, tenseErr: errors.New("boom")}))

	err := components.Tense()
	require.Error(t, err)
	assert.Equal(t, []string{"a.tense", "b.tense", "a.relax"}, journal)
}
