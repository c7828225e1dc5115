package mongo

import (
	"time"

	"github.com/xraph/grove"
)

type kvModel struct {
	grove.BaseModel `grove:"table:entitle_kv"`

	Key       string    `grove:"key,pk"     bson:"_id"`
	Value     string    `grove:"value"      bson:"value"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}
