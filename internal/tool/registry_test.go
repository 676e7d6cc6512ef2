package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carebot/carebot/internal/log"
)

type echoArgs struct {
	Text string `json:"text" jsonschema:"text to echo back"`
}

func echoTool(t *testing.T) *Tool {
	t.Helper()
	schema, err := jsonschema.For[echoArgs](nil)
	require.NoError(t, err)
	return &Tool{
		Name:        "echo",
		Description: "Echoes the input text.",
		Schema:      schema,
		Execute: func(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
			var in echoArgs
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			return json.Marshal(map[string]string{"echo": in.Text})
		},
	}
}

func TestRegistry_RegisterAndDispatch(t *testing.T) {
	r := NewRegistry(log.NewNop())
	require.NoError(t, r.Register(echoTool(t)))

	out, err := r.Dispatch(context.Background(), "echo", json.RawMessage(`{"text":"hello"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"echo":"hello"}`, string(out))
}

func TestRegistry_DuplicateName(t *testing.T) {
	r := NewRegistry(log.NewNop())
	require.NoError(t, r.Register(echoTool(t)))
	assert.Error(t, r.Register(echoTool(t)))
}

func TestRegistry_UnknownTool(t *testing.T) {
	r := NewRegistry(log.NewNop())

	_, err := r.Dispatch(context.Background(), "nope", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestRegistry_SchemaViolation(t *testing.T) {
	r := NewRegistry(log.NewNop())
	require.NoError(t, r.Register(echoTool(t)))

	t.Run("wrong type", func(t *testing.T) {
		_, err := r.Dispatch(context.Background(), "echo", json.RawMessage(`{"text":42}`))
		assert.ErrorIs(t, err, ErrSchemaViolation)
	})

	t.Run("malformed JSON", func(t *testing.T) {
		_, err := r.Dispatch(context.Background(), "echo", json.RawMessage(`{not json`))
		assert.ErrorIs(t, err, ErrSchemaViolation)
	})
}

func TestRegistry_ExecutionFailure(t *testing.T) {
	r := NewRegistry(log.NewNop())
	schema, err := jsonschema.For[echoArgs](nil)
	require.NoError(t, err)
	require.NoError(t, r.Register(&Tool{
		Name:        "broken",
		Description: "Always fails.",
		Schema:      schema,
		Execute: func(context.Context, json.RawMessage) (json.RawMessage, error) {
			return nil, errors.New("backend down")
		},
	}))

	_, err = r.Dispatch(context.Background(), "broken", json.RawMessage(`{"text":"x"}`))
	assert.ErrorIs(t, err, ErrExecutionFailed)
	assert.Contains(t, err.Error(), "backend down")
}

func TestRegistry_DefsSorted(t *testing.T) {
	r := NewRegistry(log.NewNop())
	require.NoError(t, RegisterBuiltins(r))

	defs := r.Defs()
	require.Len(t, defs, 3)
	assert.Equal(t, "medication_info", defs[0].Name)
	assert.Equal(t, "schedule_appointment", defs[1].Name)
	assert.Equal(t, "symptom_check", defs[2].Name)
	for _, d := range defs {
		assert.NotNil(t, d.Parameters)
		assert.NotEmpty(t, d.Description)
	}
}

func TestBuiltin_MedicationInfo(t *testing.T) {
	r := NewRegistry(log.NewNop())
	require.NoError(t, RegisterBuiltins(r))

	t.Run("known medication", func(t *testing.T) {
		out, err := r.Dispatch(context.Background(), "medication_info", json.RawMessage(`{"name":"Ibuprofen"}`))
		require.NoError(t, err)

		var info struct {
			Name        string   `json:"name"`
			SideEffects []string `json:"side_effects"`
		}
		require.NoError(t, json.Unmarshal(out, &info))
		assert.Equal(t, "ibuprofen", info.Name)
		assert.NotEmpty(t, info.SideEffects)
	})

	t.Run("unknown medication reports in-band", func(t *testing.T) {
		out, err := r.Dispatch(context.Background(), "medication_info", json.RawMessage(`{"name":"unobtanium"}`))
		require.NoError(t, err)
		assert.Contains(t, string(out), "no information available")
	})
}

func TestBuiltin_SymptomCheck(t *testing.T) {
	r := NewRegistry(log.NewNop())
	require.NoError(t, RegisterBuiltins(r))

	t.Run("urgent symptom", func(t *testing.T) {
		out, err := r.Dispatch(context.Background(), "symptom_check", json.RawMessage(`{"symptoms":["chest pain"]}`))
		require.NoError(t, err)
		assert.Contains(t, string(out), "emergency")
	})

	t.Run("mild symptom", func(t *testing.T) {
		out, err := r.Dispatch(context.Background(), "symptom_check", json.RawMessage(`{"symptoms":["runny nose"]}`))
		require.NoError(t, err)
		assert.Contains(t, string(out), "routine")
	})

	t.Run("empty symptom list fails execution", func(t *testing.T) {
		_, err := r.Dispatch(context.Background(), "symptom_check", json.RawMessage(`{"symptoms":[]}`))
		assert.ErrorIs(t, err, ErrExecutionFailed)
	})
}

func TestBuiltin_ScheduleAppointment(t *testing.T) {
	r := NewRegistry(log.NewNop())
	require.NoError(t, RegisterBuiltins(r))

	out, err := r.Dispatch(context.Background(), "schedule_appointment",
		json.RawMessage(`{"patient_name":"Jo Smith","specialty":"cardiology"}`))
	require.NoError(t, err)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(out, &resp))
	assert.Equal(t, "confirmed", resp["status"])
	assert.NotEmpty(t, resp["reference"])
	assert.Equal(t, "cardiology", resp["specialty"])
}
