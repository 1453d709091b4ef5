package principals_test

import (
	"testing"

	"github.com/sebastian-mora/sshtoken/internal/principals"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJMESPathPrincipalMapper(t *testing.T) {
	for _, expr := range []string{"", "[test)"} {
		mapper, err := principals.NewJMESPathPrincipalMapper(expr)
		assert.Error(t, err, expr)
		assert.Nil(t, mapper, expr)
	}
}

func TestJMESPathPrincipalMapperMap(t *testing.T) {
	claims := map[string]interface{}{
		"sub":         "user1",
		"email":       "test@test.com",
		"groups":      []string{"group1", "group2", "group1"},
		"unix_groups": []interface{}{"ops", "", "dev"},
		"mixed":       []interface{}{"ops", 7},
	}

	tests := []struct {
		name       string
		expression string
		claims     interface{}
		want       []string
		wantErr    error
		anyErr     bool
	}{
		{name: "single claim", expression: "sub", claims: claims, want: []string{"user1"}},
		{name: "list claim is deduplicated", expression: "groups[*]", claims: claims, want: []string{"group1", "group2"}},
		{name: "empty items are dropped", expression: "unix_groups", claims: claims, want: []string{"ops", "dev"}},
		{name: "multi-select keeps claim order", expression: "[email, sub, email]", claims: claims, want: []string{"test@test.com", "user1"}},
		{name: "no match", expression: "no_match", claims: claims, wantErr: principals.ErrNoPrincipals},
		{name: "empty result", expression: "[]", claims: claims, wantErr: principals.ErrNoPrincipals},
		{name: "empty string", expression: "missing || ''", claims: claims, wantErr: principals.ErrNoPrincipals},
		{name: "number result", expression: "length(sub)", claims: claims, anyErr: true},
		{name: "non-string item", expression: "mixed", claims: claims, anyErr: true},
		{name: "nil claims", expression: "sub", claims: nil, anyErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapper, err := principals.NewJMESPathPrincipalMapper(tt.expression)
			require.NoError(t, err)

			got, err := mapper.Map(tt.claims)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
			case tt.anyErr:
				assert.Error(t, err)
				assert.Nil(t, got)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestPrimary(t *testing.T) {
	mapper, err := principals.NewJMESPathPrincipalMapper("unix_groups[*]")
	require.NoError(t, err)

	primary, err := principals.Primary(mapper, map[string]interface{}{
		"unix_groups": []interface{}{"ops", "dev"},
	})
	assert.NoError(t, err)
	assert.Equal(t, "ops", primary)

	_, err = principals.Primary(mapper, map[string]interface{}{})
	assert.ErrorIs(t, err, principals.ErrNoPrincipals)
}
