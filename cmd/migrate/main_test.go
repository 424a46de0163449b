package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockRunner struct{ mock.Mock }

func (m *mockRunner) Up() error            { return m.Called().Error(0) }
func (m *mockRunner) Down() error          { return m.Called().Error(0) }
func (m *mockRunner) Steps(n int) error    { return m.Called(n).Error(0) }
func (m *mockRunner) Force(v int) error    { return m.Called(v).Error(0) }
func (m *mockRunner) Version() (uint, bool, error) {
	args := m.Called()
	return args.Get(0).(uint), args.Bool(1), args.Error(2)
}

func TestExecute(t *testing.T) {
	r := new(mockRunner)
	r.On("Up").Return(nil).Once()
	r.On("Down").Return(nil).Once()
	r.On("Steps", -2).Return(nil).Once()
	r.On("Force", 1).Return(nil).Once()
	r.On("Version").Return(uint(2), false, nil).Once()

	assert.NoError(t, execute(r, []string{"up"}))
	assert.NoError(t, execute(r, []string{"down"}))
	assert.NoError(t, execute(r, []string{"steps", "-2"}))
	assert.NoError(t, execute(r, []string{"force", "1"}))
	assert.NoError(t, execute(r, []string{"version"}))
	r.AssertExpectations(t)
}

func TestExecute_BadArguments(t *testing.T) {
	r := new(mockRunner)

	assert.Error(t, execute(r, nil))
	assert.Error(t, execute(r, []string{"sideways"}))
	assert.Error(t, execute(r, []string{"steps"}))
	assert.Error(t, execute(r, []string{"force", "one"}))
	r.AssertNotCalled(t, "Force", mock.Anything)
}
