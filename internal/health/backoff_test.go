package health

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_Delay(t *testing.T) {
	tests := []struct {
		name    string
		backoff Backoff
		want    []time.Duration
	}{
		{
			name:    "fixed",
			backoff: Backoff{Strategy: StrategyFixed, Initial: time.Second},
			want:    []time.Duration{time.Second, time.Second, time.Second},
		},
		{
			name:    "exponential capped",
			backoff: Backoff{Strategy: StrategyExponential, Initial: time.Second, Max: 5 * time.Second, Multiplier: 2},
			want:    []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second},
		},
		{
			name:    "exponential default multiplier",
			backoff: Backoff{Strategy: StrategyExponential, Initial: 100 * time.Millisecond},
			want:    []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond},
		},
		{
			name:    "fixed above ceiling without max",
			backoff: Backoff{Strategy: StrategyFixed, Initial: time.Hour},
			want:    []time.Duration{MaxDelay, MaxDelay},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i, want := range tt.want {
				assert.Equal(t, want, tt.backoff.Delay(i+1), "attempt %d", i+1)
			}
		})
	}
}

func TestBackoff_DelayWithoutMaxStaysBounded(t *testing.T) {
	b := Backoff{Strategy: StrategyExponential, Initial: time.Second, Multiplier: 10}

	assert.Equal(t, 100*time.Second, b.Delay(3))
	assert.Equal(t, MaxDelay, b.Delay(4))
	for _, attempt := range []int{10, 40, 100, 1000} {
		d := b.Delay(attempt)
		assert.Equal(t, MaxDelay, d, "attempt %d", attempt)
	}

	huge := Backoff{Strategy: StrategyExponential, Initial: time.Second, Max: time.Duration(math.MaxInt64), Multiplier: 1000}
	for _, attempt := range []int{5, 10, 50} {
		d := huge.Delay(attempt)
		assert.Positive(t, d, "attempt %d", attempt)
		assert.LessOrEqual(t, d, huge.Max, "attempt %d", attempt)
	}
}

func TestBackoff_Validate(t *testing.T) {
	assert.NoError(t, DefaultBackoff().Validate())
	assert.Error(t, Backoff{Strategy: "linear"}.Validate())
	assert.Error(t, Backoff{Strategy: StrategyFixed, Initial: -time.Second}.Validate())
	assert.Error(t, Backoff{Strategy: StrategyFixed, Initial: 10 * time.Second, Max: time.Second}.Validate())
	assert.Error(t, Backoff{Strategy: StrategyExponential, Initial: time.Second, Multiplier: 0.5}.Validate())
}

func TestParseKindAndStrategy(t *testing.T) {
	k, err := ParseKind("HTTP")
	assert.NoError(t, err)
	assert.Equal(t, KindHTTP, k)

	k, err = ParseKind("")
	assert.NoError(t, err)
	assert.Equal(t, KindNone, k)

	_, err = ParseKind("grpc")
	assert.Error(t, err)

	s, err := ParseStrategy("")
	assert.NoError(t, err)
	assert.Equal(t, StrategyExponential, s)

	_, err = ParseStrategy("random")
	assert.Error(t, err)
}

func TestCheck_Validate(t *testing.T) {
	tests := []struct {
		name    string
		check   Check
		wantErr bool
	}{
		{"none", Check{Kind: KindNone}, false},
		{"tcp ok", Check{Kind: KindTCP, Target: "localhost:5432"}, false},
		{"tcp missing port", Check{Kind: KindTCP, Target: "localhost"}, true},
		{"http ok", Check{Kind: KindHTTP, Target: "http://localhost:3000/api/health"}, false},
		{"http bad scheme", Check{Kind: KindHTTP, Target: "localhost:3000"}, true},
		{"command ok", Check{Kind: KindCommand, Command: []string{"true"}}, false},
		{"command empty", Check{Kind: KindCommand}, true},
		{"bad backoff", Check{Kind: KindTCP, Target: "a:1", Backoff: &Backoff{Strategy: "x"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.check.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
