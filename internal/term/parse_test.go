package term

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	for _, spec := range []FunctionSpec{
		{Name: "equal", Arity: 2, Identity: true},
		{Name: "less_int", Arity: 2},
		{Name: "distance", Arity: 2, Kind: KindFunction},
		{Name: "now", Arity: 0, Kind: KindFunction},
	} {
		_, err := r.Register(spec)
		require.NoError(t, err)
	}
	return r
}

func TestParseRoundTrip(t *testing.T) {
	reg := testRegistry(t)
	tests := []string{
		"less_int(a, 3)",
		"less_int(distance(center, object), -2)",
		`equal(name, "Hello, world")`,
		"equal(flag, true)",
		"equal(x, 3.5)",
		"equal(x, 3.0)",
		"now()",
		"equal(now(), t0)",
	}
	for _, text := range tests {
		t.Run(text, func(t *testing.T) {
			got, err := Parse(text, reg)
			require.NoError(t, err)
			assert.Equal(t, text, got.String())
		})
	}
}

func TestParseKinds(t *testing.T) {
	reg := testRegistry(t)
	got := MustParse(`less_int(x, 12)`, reg)
	require.Equal(t, KindApplication, got.Kind)
	assert.Equal(t, KindSymbol, got.Args[0].Kind)
	assert.Equal(t, ConstInt, got.Args[1].Const.Type)

	assert.Equal(t, ConstDouble, MustParse("1e3", reg).Const.Type)
	assert.Equal(t, ConstDouble, MustParse(".5", reg).Const.Type)
	assert.Equal(t, ConstString, MustParse(`"12"`, reg).Const.Type)
	assert.Equal(t, ConstBool, MustParse("false", reg).Const.Type)

	// A bare function name is a symbol.
	assert.Equal(t, KindSymbol, MustParse("less_int", reg).Kind)
}

func TestParseErrors(t *testing.T) {
	reg := testRegistry(t)
	tests := []struct {
		text string
		want error
	}{
		{"", ErrSyntax},
		{"less_int(a, b", ErrSyntax},
		{"less_int(a b)", ErrSyntax},
		{"less_int(a, b) extra", ErrSyntax},
		{`equal(a, "open)`, ErrSyntax},
		{"equal(a, -)", ErrSyntax},
		{"greater(a, b)", ErrUnknownFunction},
		{"less_int(a)", ErrArityMismatch},
		{"less_int(a, distance(b))", ErrArityMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			_, err := Parse(tt.text, reg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)

			var pe *ParseError
			assert.True(t, errors.As(err, &pe))
		})
	}
}

func TestParseList(t *testing.T) {
	reg := testRegistry(t)

	got, err := ParseList(`less_int(A, B), equal(B, "x, y"), less_int(distance(A, C), 4)`, reg)
	require.NoError(t, err)
	want := []string{`less_int(A, B)`, `equal(B, "x, y")`, `less_int(distance(A, C), 4)`}
	var strs []string
	for _, g := range got {
		strs = append(strs, g.String())
	}
	if diff := cmp.Diff(want, strs); diff != "" {
		t.Errorf("ParseList mismatch (-want +got):\n%s", diff)
	}

	empty, err := ParseList("  ", reg)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = ParseList("less_int(A, B), ", reg)
	assert.True(t, errors.Is(err, ErrSyntax))
}

func TestQuoteIfNeeded(t *testing.T) {
	assert.Equal(t, "alpha_1", QuoteIfNeeded("alpha_1"))
	assert.Equal(t, `"two words"`, QuoteIfNeeded("two words"))
	assert.Equal(t, `"true"`, QuoteIfNeeded("true"))
	assert.Equal(t, `"1abc"`, QuoteIfNeeded("1abc"))
	assert.Equal(t, `""`, QuoteIfNeeded(""))
}
