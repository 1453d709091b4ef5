package principals

import (
	"fmt"
	"slices"

	"github.com/jmespath/go-jmespath"
)

// JMESPathPrincipalMapper selects principals from claims with a JMESPath
// expression. The expression must yield a string or a list of strings.
type JMESPathPrincipalMapper struct {
	Exp *jmespath.JMESPath
}

func NewJMESPathPrincipalMapper(expression string) (*JMESPathPrincipalMapper, error) {
	if expression == "" {
		return nil, fmt.Errorf("expression cannot be empty")
	}

	exp, err := jmespath.Compile(expression)
	if err != nil {
		return nil, fmt.Errorf("failed to compile expression: %v", err)
	}

	return &JMESPathPrincipalMapper{
		Exp: exp,
	}, nil
}

func (m *JMESPathPrincipalMapper) Map(claims interface{}) ([]string, error) {
	if claims == nil {
		return nil, fmt.Errorf("claims cannot be nil")
	}

	result, err := m.Exp.Search(claims)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression: %v", err)
	}

	if result == nil {
		return nil, fmt.Errorf("%w: expression matched nothing", ErrNoPrincipals)
	}

	var principals []string
	switch v := result.(type) {
	case string:
		principals = []string{v}

	case []interface{}:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expression result contains non-string item")
			}
			// Keep the claim order, it decides which principal is primary.
			if s != "" && !slices.Contains(principals, s) {
				principals = append(principals, s)
			}
		}

	default:
		return nil, fmt.Errorf("expression result is neither a string nor a list of strings")
	}

	if len(principals) == 0 || principals[0] == "" {
		return nil, ErrNoPrincipals
	}
	return principals, nil
}

// Primary returns the first principal mapped from claims.
func Primary(m PrincipalMapper, claims interface{}) (string, error) {
	principals, err := m.Map(claims)
	if err != nil {
		return "", err
	}
	return principals[0], nil
}
