package expr

import (
	"time"

	"github.com/google/uuid"
)

// Builtins are the generator functions every provider registers by default:
// uuid()/cuid() for id defaults, now() for createdAt/updatedAt defaults.
var Builtins = Registry{
	"uuid": func([]Expr) (any, error) { return uuid.New(), nil },
	"now": func([]Expr) (any, error) { return time.Now().UTC(), nil },
	"cuid": func([]Expr) (any, error) { return uuid.New().String(), nil },
}
