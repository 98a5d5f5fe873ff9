package masking_test

import (
	"encoding/json"
	"strconv"
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaihank/logmask/internal/masking"
)

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		name string
		want masking.Strategy
	}{
		{"FULL", masking.Full},
		{"partial", masking.Partial},
		{"None", masking.None},
		{"email", masking.Email},
		{"WARNING", masking.Warning},
		{"user_name", masking.UserName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := masking.ParseStrategy(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("unknown", func(t *testing.T) {
		_, err := masking.ParseStrategy("HASH")
		assert.ErrorIs(t, err, masking.ErrUnknownStrategy)
	})
}

func TestStrategyJSON(t *testing.T) {
	data, err := json.Marshal(map[string]masking.Strategy{"s": masking.UserName})
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":"USER_NAME"}`, string(data))

	var decoded map[string]masking.Strategy
	require.NoError(t, json.Unmarshal([]byte(`{"s":"partial"}`), &decoded))
	assert.Equal(t, masking.Partial, decoded["s"])
}

func TestTotalStrategies(t *testing.T) {
	inputs := []string{"", "1234-5678", "password=secret", "홍길동"}

	for _, in := range inputs {
		got, err := masking.Full.Apply(in, "ignored")
		require.NoError(t, err)
		assert.Equal(t, masking.MaskToken, got)

		got, err = masking.None.Apply(in, "")
		require.NoError(t, err)
		assert.Equal(t, in, got)

		got, err = masking.Warning.Apply(in, "")
		require.NoError(t, err)
		assert.Equal(t, masking.WarningText, got)

		_, err = masking.Email.Apply(in, "x")
		assert.NoError(t, err)

		_, err = masking.UserName.Apply(in, "x")
		assert.NoError(t, err)
	}
}

func TestEmailStrategy(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"user@example.com", "us****@example.com"},
		{"a@example.com", "a****@example.com"},
		{"abc@x.io", "a****@x.io"},
		{"firstname.lastname@corp.co.kr", "fi****@corp.co.kr"},
		{"@example.com", "****"},
		{"no-at-sign", "****"},
		{"", "****"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := masking.Email.Apply(tt.in, "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUserNameStrategy(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"name=홍", "name=*"},
		{"name=홍길", "name=홍*"},
		{"name=홍길동", "name=홍*동"},
		{"name=남궁민수", "name=남**수"},
		{"user=John", "user=J**n"},
		{"userName=Al", "userName=A*"},
		{"name= 김철수 ", "name=김*수"},
		{"name=   ", "name=*"},
		// combining accent forms one user-perceived character
		{"name=e\u0301va", "name=e\u0301*a"},
		{"name=", "name="},
		{"name: 홍길동", "name: 홍길동"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := masking.UserName.Apply(tt.in, "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPartialStrategy(t *testing.T) {
	tests := []struct {
		in    string
		param string
		want  string
	}{
		{"1234-5678-9012-3456", "6-4", "1234-56****-****-3456"},
		{"1234-5678-9012-3456", "4-4", "1234-****-****-3456"},
		{"1234567890", "2-2", "12****90"},
		{"010-1234-5678", "3-4", "010-****-5678"},
		{"901234-1234567", "6-0", "901234-****"},
		{"110-12-345678", "3-0", "110-****-****"},
		{"1234567890", "0-0", "****"},
		{"ABCD1234EF", "2-2", "AB****EF"},
		{"가나다라마", "1-1", "가****마"},
		{"12 34 56", "1-1", "1**** **** ****6"},
	}

	for _, tt := range tests {
		t.Run(tt.in+"/"+tt.param, func(t *testing.T) {
			got, err := masking.Partial.Apply(tt.in, tt.param)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPartialRejectsUnrevealableValues(t *testing.T) {
	tests := []struct {
		in    string
		param string
	}{
		{"1234", "2-2"},
		{"123456", "5-3"},
		{"123-456", "4-2"},
		{"123-456", "3-3"},
		{"", "0-0"},
		{"---", "0-0"},
		{"1234-5678-9012-3456", "9223372036854775807-1"},
		{"1234-5678-9012-3456", "1-9223372036854775807"},
		{"1234-5678-9012-3456", "9223372036854775807-9223372036854775807"},
	}

	for _, tt := range tests {
		t.Run(tt.in+"/"+tt.param, func(t *testing.T) {
			got, err := masking.Partial.Apply(tt.in, tt.param)
			require.Error(t, err)
			assert.ErrorIs(t, err, masking.ErrInvalidParameter)
			assert.Empty(t, got)
		})
	}
}

func TestPartialErrorNamesRequiredLength(t *testing.T) {
	_, err := masking.Partial.Apply("1234", "2-2")

	var perr *masking.ParamError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Reason, "value has 4 letters or digits, needs more than 2 revealed plus 2")
}

func TestPartialRejectsMalformedParams(t *testing.T) {
	params := []string{"a-b", "3-", "-2", "3-2-1", "", "3,4", " 3-4", "-1-2", "3", "99999999999999999999-1"}

	for _, param := range params {
		t.Run(param, func(t *testing.T) {
			_, err := masking.Partial.Apply("010-1234-5678", param)
			require.Error(t, err)
			assert.ErrorIs(t, err, masking.ErrInvalidParameter)

			var perr *masking.ParamError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, param, perr.Param)
		})
	}
}

func TestPartialPreservesSeparators(t *testing.T) {
	samples := []string{
		"1234-5678-9012-3456",
		"010 1234 5678",
		"(02) 123-4567 ext.89",
		"AB-12/CD_34.EF",
		"가나-다라-마바",
	}
	params := []string{"0-0", "1-1", "2-3", "3-0", "0-4"}

	separators := func(s string) string {
		return strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '*' {
				return -1
			}
			return r
		}, s)
	}

	for _, in := range samples {
		for _, param := range params {
			got, err := masking.Partial.Apply(in, param)
			if err != nil {
				assert.ErrorIs(t, err, masking.ErrInvalidParameter)
				continue
			}
			assert.Equal(t, separators(in), separators(got), "%q with %s", in, param)
		}
	}
}

func TestPartialCollapsesSingleRun(t *testing.T) {
	const alphabet = "0123456789abcdefgh"

	for length := 1; length <= len(alphabet); length++ {
		text := alphabet[:length]
		for prefix := 0; prefix < length; prefix++ {
			for suffix := 0; prefix+suffix < length; suffix++ {
				param := strconv.Itoa(prefix) + "-" + strconv.Itoa(suffix)
				got, err := masking.Partial.Apply(text, param)
				require.NoError(t, err)
				assert.Equal(t, text[:prefix]+masking.MaskToken+text[length-suffix:], got, "%q with %s", text, param)
			}
		}
	}
}
