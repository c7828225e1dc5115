package postgres

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

func toKVModel(key, value string) *kvModel {
	return &kvModel{
		Key:       key,
		Value:     value,
		UpdatedAt: now(),
	}
}
