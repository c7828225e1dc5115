package sqlite

import (
	"time"

	"github.com/xraph/grove"
)

type kvModel struct {
	grove.BaseModel `grove:"table:entitle_kv"`

	Key       string    `grove:"key,pk"`
	Value     string    `grove:"value"`
	UpdatedAt time.Time `grove:"updated_at"`
}
