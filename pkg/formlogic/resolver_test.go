package formlogic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func showWhen(cond Condition) *ConditionalLogic {
	return &ConditionalLogic{Condition: cond, Actions: []Action{Show()}}
}

func stateCountryFields(t testing.TB) []*FieldDefinition {
	return []*FieldDefinition{
		{ID: "country", Type: "select", Choices: []string{"US", "CA"}},
		{
			ID:         "state",
			Type:       "text",
			Hidden:     true,
			Validation: NewValidationSpec(RequiredCheck{}),
			Logic:      showWhen(leaf(t, "country", OpEq, StringValue("US"))),
		},
	}
}

func TestResolveShowsStateForUS(t *testing.T) {
	fields := stateCountryFields(t)

	res := Resolve(fields, Values{"country": StringValue("US")}, 0)
	assert.True(t, res.Converged)
	assert.Equal(t, 2, res.Iterations)
	assert.True(t, res.State("state").Visible)
	assert.True(t, res.State("state").Required)

	res = Resolve(fields, Values{"country": StringValue("CA")}, 0)
	assert.True(t, res.Converged)
	assert.Equal(t, 1, res.Iterations)
	assert.False(t, res.State("state").Visible)
	assert.Empty(t, res.Warnings)
}

func TestResolveMutualVisibilityHitsCap(t *testing.T) {
	fields := []*FieldDefinition{
		{ID: "a", Hidden: true, Logic: showWhen(leaf(t, "b", OpIsEmpty, EmptyValue()))},
		{ID: "b", Hidden: true, Logic: showWhen(leaf(t, "a", OpIsEmpty, EmptyValue()))},
	}
	values := Values{"a": StringValue("x"), "b": StringValue("y")}

	res := Resolve(fields, values, 0)
	assert.False(t, res.Converged)
	assert.Equal(t, DefaultMaxIterations, res.Iterations)
	for _, id := range []string{"a", "b"} {
		require.Len(t, res.Warnings[id], 1, id)
		assert.Equal(t, CodeConditionalLogicCycle, res.Warnings[id][0].Code)
	}

	res = Resolve(fields, values, 3)
	assert.False(t, res.Converged)
	assert.Equal(t, 3, res.Iterations)
}

func TestResolveChainSettles(t *testing.T) {
	fields := []*FieldDefinition{
		{ID: "a"},
		{ID: "b", Hidden: true, Logic: showWhen(leaf(t, "a", OpIsNotEmpty, EmptyValue()))},
		{ID: "c", Hidden: true, Logic: showWhen(leaf(t, "b", OpIsNotEmpty, EmptyValue()))},
	}
	values := Values{"a": StringValue("1"), "b": StringValue("2"), "c": StringValue("3")}

	res := Resolve(fields, values, 0)
	assert.True(t, res.Converged)
	assert.LessOrEqual(t, res.Iterations, 3)
	assert.True(t, res.State("b").Visible)
	assert.True(t, res.State("c").Visible)
}

func TestEvaluateLongChainSettlesUnderDefaultCap(t *testing.T) {
	fields, values := chainFields(t, 12)

	report, err := EvaluateSubmission(fields, values)
	require.NoError(t, err)
	assert.True(t, report.Converged)
	assert.Equal(t, 2, report.Iterations)
	assert.Empty(t, report.Warnings())
	last, ok := report.Field("f11")
	require.True(t, ok)
	assert.True(t, last.Visible)
}

func TestResolveOrderIndependentOfDeclaration(t *testing.T) {
	double, err := SetValueExpr("total * 2")
	require.NoError(t, err)
	sum, err := SetValueExpr("qty * price")
	require.NoError(t, err)

	fields := []*FieldDefinition{
		{ID: "shipping", Hidden: true, Logic: showWhen(leaf(t, "doubled", OpGt, NumberValue(15)))},
		{ID: "doubled", Logic: &ConditionalLogic{Condition: All{}, Actions: []Action{double}}},
		{ID: "total", Logic: &ConditionalLogic{Condition: All{}, Actions: []Action{sum}}},
		{ID: "qty"},
		{ID: "price"},
	}
	res := Resolve(fields, Values{"qty": NumberValue(2), "price": NumberValue(5)}, 0)
	assert.True(t, res.Converged)
	assert.Equal(t, 2, res.Iterations)

	doubled := res.State("doubled").Effective
	require.NotNil(t, doubled)
	assert.True(t, doubled.Equal(NumberValue(20)))
	assert.True(t, res.State("shipping").Visible)
}

func TestDependencyOrder(t *testing.T) {
	fields := []*FieldDefinition{
		{ID: "c", Hidden: true, Logic: showWhen(leaf(t, "b", OpIsNotEmpty, EmptyValue()))},
		{ID: "b", Hidden: true, Logic: showWhen(leaf(t, "a", OpIsEmpty, EmptyValue()))},
		{ID: "a", Hidden: true, Logic: showWhen(leaf(t, "b", OpIsEmpty, EmptyValue()))},
		{ID: "d"},
	}
	var got [][]string
	at := make(map[string]int)
	for i, group := range dependencyOrder(fields) {
		ids := fieldIDs(&Form{Fields: group})
		got = append(got, ids)
		for _, id := range ids {
			at[id] = i
		}
	}
	assert.ElementsMatch(t, [][]string{{"b", "a"}, {"c"}, {"d"}}, got)
	assert.Less(t, at["b"], at["c"], "a cycle is resolved before the fields reading it")
}

func TestResolveHiddenFieldMasksDependents(t *testing.T) {
	fields := []*FieldDefinition{
		{ID: "a", Hidden: true},
		{ID: "b", Hidden: true, Logic: showWhen(leaf(t, "a", OpEq, StringValue("yes")))},
	}
	res := Resolve(fields, Values{"a": StringValue("yes")}, 0)
	assert.True(t, res.Converged)
	assert.False(t, res.State("b").Visible, "conditions do not see values of hidden fields")
}

func TestResolveLastActionWins(t *testing.T) {
	always := All{}
	fields := []*FieldDefinition{
		{ID: "x", Logic: &ConditionalLogic{Condition: always, Actions: []Action{Hide(), Show(), Require(), Optional()}}},
		{
			ID:    "y",
			Logic: &ConditionalLogic{Condition: always, Actions: []Action{Show()}},
			Rules: []ConditionalLogic{{Condition: always, Actions: []Action{Hide()}}},
		},
	}
	res := Resolve(fields, Values{}, 0)
	assert.True(t, res.State("x").Visible)
	assert.False(t, res.State("x").Required)
	assert.False(t, res.State("y").Visible, "rules apply after conditional logic")
}

func TestResolveRequireAction(t *testing.T) {
	fields := []*FieldDefinition{
		{ID: "employed"},
		{ID: "employer", Rules: []ConditionalLogic{{
			Condition: leaf(t, "employed", OpEq, StringValue("yes")),
			Actions:   []Action{Require()},
		}}},
	}
	assert.True(t, Resolve(fields, Values{"employed": StringValue("yes")}, 0).State("employer").Required)
	assert.False(t, Resolve(fields, Values{"employed": StringValue("no")}, 0).State("employer").Required)
}

func TestResolveSetValue(t *testing.T) {
	computed, err := SetValueExpr("qty * price")
	require.NoError(t, err)

	fields := []*FieldDefinition{
		{ID: "qty"},
		{ID: "price"},
		{ID: "total", Logic: &ConditionalLogic{
			Condition: leaf(t, "qty", OpGt, NumberValue(0)),
			Actions:   []Action{computed},
		}},
		{ID: "plan", Logic: &ConditionalLogic{
			Condition: leaf(t, "total", OpGt, NumberValue(5)),
			Actions:   []Action{SetValue(StringValue("premium"))},
		}},
	}
	res := Resolve(fields, Values{"qty": NumberValue(2), "price": NumberValue(5)}, 0)
	require.True(t, res.Converged)

	total := res.State("total").Effective
	require.NotNil(t, total)
	assert.True(t, total.Equal(NumberValue(10)))

	plan := res.State("plan").Effective
	require.NotNil(t, plan, "assigned values feed later conditions")
	assert.Equal(t, StringValue("premium"), *plan)
}

func TestResolveExpressionFailureWarns(t *testing.T) {
	broken, err := SetValueExpr("qty.amount")
	require.NoError(t, err)

	fields := []*FieldDefinition{
		{ID: "qty"},
		{ID: "total", Logic: &ConditionalLogic{Condition: All{}, Actions: []Action{broken}}},
	}
	res := Resolve(fields, Values{"qty": NumberValue(2)}, 0)
	assert.True(t, res.Converged)
	assert.Nil(t, res.State("total").Effective)
	require.Len(t, res.Warnings["total"], 1)
	assert.Equal(t, CodeExpressionError, res.Warnings["total"][0].Code)
}

func TestSetValueExprRejectsSyntaxErrors(t *testing.T) {
	_, err := SetValueExpr("qty *")
	assert.Error(t, err)
}
