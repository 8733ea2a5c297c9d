package wizard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/intake-cli/internal/intake"
	"github.com/sells-group/intake-cli/internal/model"
)

// fakeSubmitter records calls and returns a scripted result. release,
// when set, blocks the submit until signalled.
type fakeSubmitter struct {
	mu      sync.Mutex
	calls   int
	fields  model.IntakeFields
	id      string
	err     error
	release chan struct{}
}

func (f *fakeSubmitter) Submit(ctx context.Context, fields model.IntakeFields) (string, error) {
	f.mu.Lock()
	f.calls++
	f.fields = fields
	f.mu.Unlock()
	if f.release != nil {
		<-f.release
	}
	return f.id, f.err
}

func atLastStep(c *Controller) {
	for range c.Steps()[1:] {
		c.Next()
	}
}

func validForm(c *Controller) {
	c.SetField("first_name", "Jane")
	c.SetField("last_name", "Doe")
}

func TestNavigation_Bounds(t *testing.T) {
	c := New(NavigationLinear, &fakeSubmitter{})

	assert.Equal(t, 0, c.Active())
	c.Previous()
	assert.Equal(t, 0, c.Active()) // bounded at first step

	last := len(c.Steps()) - 1
	for range 10 {
		c.Next()
	}
	assert.Equal(t, last, c.Active()) // bounded at last step
}

func TestNavigation_GoToRequiresTabs(t *testing.T) {
	linear := New(NavigationLinear, &fakeSubmitter{})
	err := linear.GoTo(2)
	require.ErrorIs(t, err, ErrJumpNotAllowed)
	assert.Equal(t, 0, linear.Active())

	tabs := New(NavigationTabs, &fakeSubmitter{})
	require.NoError(t, tabs.GoTo(2))
	assert.Equal(t, 2, tabs.Active())

	// Out-of-range jumps clamp.
	require.NoError(t, tabs.GoTo(99))
	assert.Equal(t, len(tabs.Steps())-1, tabs.Active())
	require.NoError(t, tabs.GoTo(-3))
	assert.Equal(t, 0, tabs.Active())
}

func TestValidation_DoesNotBlockNavigation(t *testing.T) {
	c := New(NavigationLinear, &fakeSubmitter{})

	c.SetField("phone", "not-a-number")
	errs := c.FieldErrors()
	assert.Equal(t, "digits only", errs["phone"])

	// Navigation proceeds regardless.
	c.Next()
	assert.Equal(t, 1, c.Active())
}

func TestValidation_RequiredNames(t *testing.T) {
	c := New(NavigationLinear, &fakeSubmitter{})

	c.SetField("first_name", "   ")
	errs := c.FieldErrors()
	assert.Equal(t, "required", errs["first_name"])
	assert.Equal(t, "required", errs["last_name"])

	validForm(c)
	errs = c.FieldErrors()
	assert.Empty(t, errs)
}

func TestSubmit_OnlyOnLastStep(t *testing.T) {
	sub := &fakeSubmitter{id: "contact-1"}
	c := New(NavigationLinear, sub)
	validForm(c)

	_, err := c.Submit(context.Background())
	require.ErrorIs(t, err, ErrNotLastStep)
	assert.Equal(t, 0, sub.calls)
}

func TestSubmit_ValidationGate(t *testing.T) {
	sub := &fakeSubmitter{id: "contact-1"}
	c := New(NavigationLinear, sub)
	c.SetField("mobile", "12a34")
	atLastStep(c)

	_, err := c.Submit(context.Background())
	var vErr *intake.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "required", vErr.Fields["first_name"])
	assert.Equal(t, "digits only", vErr.Fields["mobile"])
	assert.Equal(t, 0, sub.calls)
}

func TestSubmit_SuccessResets(t *testing.T) {
	sub := &fakeSubmitter{id: "contact-1"}
	c := New(NavigationLinear, sub)
	validForm(c)
	c.SetField("email", "jane@example.org")
	c.SetField("is_investigator", "true")
	c.SetField("training_date", "2026-03-15")
	atLastStep(c)

	id, err := c.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "contact-1", id)

	// Submitted fields were converted from the raw values.
	assert.Equal(t, "Jane", sub.fields.FirstName)
	assert.True(t, sub.fields.IsInvestigator)
	require.NotNil(t, sub.fields.Investigator.TrainingDate)
	assert.Equal(t, 2026, sub.fields.Investigator.TrainingDate.Year())

	// Success returns to a blank step 0.
	assert.Equal(t, 0, c.Active())
	assert.Empty(t, c.Field("first_name"))
}

func TestSubmit_FailurePreservesState(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("store down")}
	c := New(NavigationLinear, sub)
	validForm(c)
	atLastStep(c)
	last := c.Active()

	_, err := c.Submit(context.Background())
	require.Error(t, err)

	// Step position and values survive for correction and resubmit.
	assert.Equal(t, last, c.Active())
	assert.Equal(t, "Jane", c.Field("first_name"))

	// A retry after the failure is permitted.
	sub.mu.Lock()
	sub.err = nil
	sub.id = "contact-2"
	sub.mu.Unlock()
	id, err := c.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "contact-2", id)
}

func TestSubmit_SingleFlight(t *testing.T) {
	sub := &fakeSubmitter{id: "contact-1", release: make(chan struct{})}
	c := New(NavigationLinear, sub)
	validForm(c)
	atLastStep(c)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := c.Submit(context.Background())
		assert.NoError(t, err)
	}()

	// Wait for the first submit to reach the submitter.
	for {
		sub.mu.Lock()
		started := sub.calls == 1
		sub.mu.Unlock()
		if started {
			break
		}
		time.Sleep(time.Millisecond)
	}

	_, err := c.Submit(context.Background())
	require.ErrorIs(t, err, intake.ErrSubmitInFlight)

	close(sub.release)
	<-done
	assert.Equal(t, 1, sub.calls)
}
