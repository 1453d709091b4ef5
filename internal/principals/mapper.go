package principals

import "errors"

var ErrNoPrincipals = errors.New("no principals matched from token")

// PrincipalMapper maps token claims to SSH principals.
type PrincipalMapper interface {
	Map(claims interface{}) ([]string, error)
}
